package llm_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/modelgate/internal/gate"
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/testutil"
	"github.com/BaSui01/modelgate/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAsync(t *testing.T, providers ...*mocks.MockProvider) *llm.AsyncRegistry {
	t.Helper()
	reg := llm.NewRegistry()
	for _, p := range providers {
		registerMock(reg, p)
	}
	return llm.NewAsyncRegistry(reg, nil, nil, zap.NewNop())
}

// ---------------------------------------------------------------------------
// Single-request path
// ---------------------------------------------------------------------------

func TestAsyncRegistry_GenerateContent(t *testing.T) {
	mock := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash", "flash")
	ar := newAsync(t, mock)

	resp, err := ar.GenerateContent(testutil.TestContext(t), &llm.GenerateRequest{
		Model:  "FLASH",
		Prompt: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Equal(t, "gemini-2.5-flash", resp.ModelName)
}

func TestAsyncRegistry_GenerateContent_PropagatesFailure(t *testing.T) {
	upstream := errors.New("backend down")
	mock := mocks.NewMockProvider(llm.ProviderOpenAI, "gpt-4.1").WithScript(upstream)
	ar := newAsync(t, mock)

	// 单请求路径直接向调用方传播失败
	_, err := ar.GenerateContent(testutil.TestContext(t), &llm.GenerateRequest{
		Model: "gpt-4.1", Prompt: "hi",
	})
	assert.ErrorIs(t, err, upstream)

	_, err = ar.GenerateContent(testutil.TestContext(t), &llm.GenerateRequest{
		Model: "absent", Prompt: "hi",
	})
	var notFound *llm.ModelNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAsyncRegistry_GenerateContent_HonorsCancelledContext(t *testing.T) {
	mock := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash")
	ar := newAsync(t, mock)

	_, err := ar.GenerateContent(testutil.CancelledContext(), &llm.GenerateRequest{
		Model: "gemini-2.5-flash", Prompt: "hi",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Batch dispatch
// ---------------------------------------------------------------------------

func TestAsyncRegistry_Batch_PreservesOrderAcrossProviders(t *testing.T) {
	// Gemini 故意比 OpenAI 慢：完成顺序乱，结果顺序不乱
	gemini := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash", "flash").
		WithDelay(30 * time.Millisecond)
	openai := mocks.NewMockProvider(llm.ProviderOpenAI, "gpt-4.1")
	ar := newAsync(t, gemini, openai)

	reqs := []*llm.GenerateRequest{
		{Model: "flash", Prompt: "a"},
		{Model: "gpt-4.1", Prompt: "b"},
		{Model: "FLASH", Prompt: "c"},
		{Model: "gpt-4.1", Prompt: "d"},
	}
	results := ar.BatchGenerateContent(testutil.TestContext(t), reqs, nil)

	require.Len(t, results, 4)
	wantProviders := []llm.ProviderType{
		llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderGemini, llm.ProviderOpenAI,
	}
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		require.NoError(t, r.Err, "item %d", i)
		require.NotNil(t, r.Response, "item %d", i)
		assert.Equal(t, wantProviders[i], r.Response.Provider, "item %d", i)
	}
}

func TestAsyncRegistry_Batch_AssignsRequestIDs(t *testing.T) {
	mock := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash")
	ar := newAsync(t, mock)

	reqs := []*llm.GenerateRequest{
		{Model: "gemini-2.5-flash", Prompt: "a"},
		{RequestID: "caller-chosen", Model: "gemini-2.5-flash", Prompt: "b"},
	}
	results := ar.BatchGenerateContent(testutil.TestContext(t), reqs, nil)

	assert.NotEmpty(t, results[0].RequestID, "missing id must be generated")
	assert.Equal(t, "caller-chosen", results[1].RequestID)
	assert.NotEqual(t, results[0].RequestID, results[1].RequestID)
}

func TestAsyncRegistry_Batch_ItemFailuresAreIsolated(t *testing.T) {
	upstream := errors.New("backend down")
	gemini := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash")
	openai := mocks.NewMockProvider(llm.ProviderOpenAI, "gpt-4.1").WithScript(upstream)
	ar := newAsync(t, gemini, openai)

	reqs := []*llm.GenerateRequest{
		{Model: "gemini-2.5-flash", Prompt: "a"},
		{Model: "gpt-4.1", Prompt: "b"},
		{Model: "no-such-model", Prompt: "c"},
		{Model: "gemini-2.5-flash", Prompt: "d"},
	}
	results := ar.BatchGenerateContent(testutil.TestContext(t), reqs, nil)
	require.Len(t, results, 4)

	// 失败只落在自己的槽位
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Response)

	assert.ErrorIs(t, results[1].Err, upstream)
	assert.Nil(t, results[1].Response)

	var notFound *llm.ModelNotFoundError
	assert.ErrorAs(t, results[2].Err, &notFound)

	assert.NoError(t, results[3].Err)
	assert.NotNil(t, results[3].Response)
}

func TestAsyncRegistry_Batch_PrivateGateBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	mock := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash").
		WithDelay(10 * time.Millisecond)

	reg := llm.NewRegistry()
	reg.RegisterFactory(llm.ProviderGemini, func() (llm.ModelProvider, error) {
		return &concurrencyProbe{MockProvider: mock, inFlight: &inFlight, peak: &peak}, nil
	})
	ar := llm.NewAsyncRegistry(reg, nil, nil, zap.NewNop())

	reqs := make([]*llm.GenerateRequest, 20)
	for i := range reqs {
		reqs[i] = &llm.GenerateRequest{Model: "gemini-2.5-flash", Prompt: fmt.Sprintf("p%d", i)}
	}
	results := ar.BatchGenerateContent(testutil.TestContext(t), reqs, &llm.BatchOptions{Concurrency: 3})

	for i, r := range results {
		require.NoError(t, r.Err, "item %d", i)
	}
	assert.LessOrEqual(t, peak.Load(), int64(3), "batch gate must bound in-flight calls")
	assert.Zero(t, inFlight.Load())
}

// concurrencyProbe 在真实调用前后维护在途计数，用于观测峰值并发
type concurrencyProbe struct {
	*mocks.MockProvider
	inFlight *atomic.Int64
	peak     *atomic.Int64
}

func (p *concurrencyProbe) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if cur <= old || p.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	return p.MockProvider.GenerateContent(ctx, req)
}

func TestAsyncRegistry_Batch_EmptyInput(t *testing.T) {
	ar := newAsync(t, mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash"))
	assert.Empty(t, ar.BatchGenerateContent(testutil.TestContext(t), nil, nil))
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func TestAsyncRegistry_Shutdown_ClosesAllProviders(t *testing.T) {
	gemini := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash")
	openai := mocks.NewMockProvider(llm.ProviderOpenAI, "gpt-4.1")
	ar := newAsync(t, gemini, openai)

	// 触发两个实例的惰性构造
	_, err := ar.GetProviderForModel("gemini-2.5-flash")
	require.NoError(t, err)
	_, err = ar.GetProviderForModel("gpt-4.1")
	require.NoError(t, err)

	require.NoError(t, ar.Shutdown(testutil.TestContext(t)))
	assert.True(t, gemini.Closed())
	assert.True(t, openai.Closed())
}

func TestAsyncRegistry_Shutdown_FailureDoesNotBlockSiblings(t *testing.T) {
	closeErr := errors.New("socket already gone")
	gemini := mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash").WithCloseError(closeErr)
	openai := mocks.NewMockProvider(llm.ProviderOpenAI, "gpt-4.1")
	ar := newAsync(t, gemini, openai)

	_, err := ar.GetProviderForModel("gemini-2.5-flash")
	require.NoError(t, err)
	_, err = ar.GetProviderForModel("gpt-4.1")
	require.NoError(t, err)

	err = ar.Shutdown(testutil.TestContext(t))
	assert.ErrorIs(t, err, closeErr)
	// 出错的提供商不拦住兄弟清理
	assert.True(t, gemini.Closed())
	assert.True(t, openai.Closed())
}

func TestAsyncRegistry_SharedGatePerProvider(t *testing.T) {
	gates := gate.NewRegistry(4, zap.NewNop())
	reg := llm.NewRegistry()
	registerMock(reg, mocks.NewMockProvider(llm.ProviderGemini, "gemini-2.5-flash"))
	ar := llm.NewAsyncRegistry(reg, gates, nil, zap.NewNop())

	assert.Same(t, gates, ar.Gates())
	assert.Equal(t, 4, ar.Gates().For("gemini").Limit())
}
