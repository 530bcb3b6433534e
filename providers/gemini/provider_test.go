package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	cfg := providers.GeminiConfig{}
	cfg.APIKey = "gemini-key"
	cfg.BaseURL = baseURL
	p, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	for _, name := range []string{"gemini-2.5-pro", "pro", "gemini-flash", "FLASH", "flash-lite"} {
		assert.True(t, c.Contains(name), "catalog must serve %q", name)
	}

	caps, ok := c.Resolve("flash")
	require.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash", caps.ModelName)
	assert.True(t, caps.SupportsThinking)
}

func TestProvider_WireFormat(t *testing.T) {
	var gotPath, gotKey string
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]string{{"text": "part one, "}, {"text": "part two"}},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount": 9, "candidatesTokenCount": 5, "totalTokenCount": 14,
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	resp, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Model:           "flash",
		Prompt:          "hello",
		SystemPrompt:    "be terse",
		Temperature:     0.3,
		MaxOutputTokens: 128,
		ThinkingMode:    true,
	})
	require.NoError(t, err)

	// 多 part 候选拼接为完整内容
	assert.Equal(t, "part one, part two", resp.Content)
	assert.Equal(t, "gemini-2.5-flash", resp.ModelName)
	assert.Equal(t, llm.Usage{InputTokens: 9, OutputTokens: 5, TotalTokens: 14}, resp.Usage)

	// 模型名进路径，认证走 x-goog-api-key 头
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", gotPath)
	assert.Equal(t, "gemini-key", gotKey)

	// system 指令与生成参数在各自的报文位置
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be terse", got.SystemInstruction.Parts[0].Text)
	require.NotNil(t, got.GenerationConfig)
	require.NotNil(t, got.GenerationConfig.Temperature)
	assert.Equal(t, 0.3, *got.GenerationConfig.Temperature)
	assert.Equal(t, 128, got.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, got.GenerationConfig.ThinkingConfig)
	assert.Equal(t, 24_576, got.GenerationConfig.ThinkingConfig.ThinkingBudget)
}

func TestProvider_NoCandidatesIsContentFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{Model: "flash", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.ErrContentFiltered, types.GetErrorCode(err))
}

func TestProvider_ResourceExhaustedBodySurvives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    429,
				"message": "Quota exceeded for quota metric 'GenerateContent requests'",
				"status":  "RESOURCE_EXHAUSTED",
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{Model: "flash", Prompt: "hi"})
	require.Error(t, err)

	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrRateLimited, te.Code)
	assert.True(t, te.Retryable)
	// 状态与原文都保留，分类器靠它区分限速与配额终态
	assert.Contains(t, te.Message, "RESOURCE_EXHAUSTED")
	assert.Contains(t, te.Message, "Quota exceeded")
}

func TestProvider_AuthErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
		}))

		p := newTestProvider(t, srv.URL)
		_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{Model: "flash", Prompt: "hi"})
		require.Error(t, err)
		assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
		assert.False(t, types.IsRetryable(err))
		srv.Close()
	}
}

func TestProvider_UnknownModelShortCircuits(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{Model: "claude-3", Prompt: "hi"})
	var notFound *llm.ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.False(t, called)
}
