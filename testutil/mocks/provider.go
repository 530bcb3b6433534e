// MockProvider 的模型后端测试模拟实现。
//
// 支持固定响应、脚本化响应序列、错误注入与延迟场景。
package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/modelgate/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 ModelProvider 的脚本化模拟实现。
// 每次 GenerateContent 按脚本顺序返回结果；脚本耗尽后复用最后一项。
type MockProvider struct {
	mu sync.Mutex

	providerType llm.ProviderType
	catalog      *llm.Catalog

	// 脚本：每项要么是响应内容，要么是错误
	script []scriptStep
	cursor int

	// 每次调用前的固定延迟（模拟慢后端）
	delay time.Duration

	// 调用记录
	generateCalls int
	lastRequest   *llm.GenerateRequest
	closed        bool
	closeErr      error
}

type scriptStep struct {
	content string
	err     error
}

// NewMockProvider 创建模拟提供商，注册给定模型名（首个为规范名，其余为别名）。
func NewMockProvider(t llm.ProviderType, modelName string, aliases ...string) *MockProvider {
	catalog, err := llm.NewCatalog(t, []llm.ModelCapabilities{
		{
			ModelName:            modelName,
			Aliases:              aliases,
			ContextWindow:        128_000,
			MaxOutputTokens:      8_192,
			SupportsSystemPrompt: true,
			SupportsThinking:     true,
			ThinkingBudget:       1_024,
		},
	})
	if err != nil {
		panic(err)
	}
	return &MockProvider{
		providerType: t,
		catalog:      catalog,
		script:       []scriptStep{{content: "mock response"}},
	}
}

// WithResponse 追加一个成功响应到脚本
func (m *MockProvider) WithResponse(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{content: content})
	return m
}

// WithError 追加一个错误到脚本
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{err: err})
	return m
}

// WithScript 替换整个脚本：errs 里 nil 表示成功
func (m *MockProvider) WithScript(steps ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = m.script[:0]
	for _, err := range steps {
		m.script = append(m.script, scriptStep{content: "mock response", err: err})
	}
	return m
}

// WithDelay 设置每次调用前的延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCloseError 设置 Close 返回的错误
func (m *MockProvider) WithCloseError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
	return m
}

// --- ModelProvider 实现 ---

func (m *MockProvider) Type() llm.ProviderType { return m.providerType }

func (m *MockProvider) GetCapabilities(modelName string) (llm.ModelCapabilities, error) {
	caps, ok := m.catalog.Resolve(modelName)
	if !ok {
		return llm.ModelCapabilities{}, llm.NewModelNotFoundError(modelName)
	}
	return caps, nil
}

func (m *MockProvider) ValidateModelName(modelName string) bool {
	return m.catalog.Contains(modelName)
}

func (m *MockProvider) ListModels() []llm.ModelCapabilities {
	return m.catalog.List()
}

func (m *MockProvider) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	m.mu.Lock()
	m.generateCalls++
	m.lastRequest = req
	step := m.script[min(m.cursor, len(m.script)-1)]
	m.cursor++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}

	caps, _ := m.catalog.Resolve(req.Model)
	return &llm.GenerateResponse{
		Content:   step.content,
		ModelName: caps.ModelName,
		Provider:  m.providerType,
		Usage: llm.Usage{
			InputTokens:  len(strings.Fields(req.Prompt)),
			OutputTokens: len(strings.Fields(step.content)),
			TotalTokens:  len(strings.Fields(req.Prompt)) + len(strings.Fields(step.content)),
		},
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockProvider) CountTokens(_ context.Context, text, _ string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (m *MockProvider) SupportsThinkingMode(modelName string) bool {
	caps, ok := m.catalog.Resolve(modelName)
	return ok && caps.SupportsThinking
}

func (m *MockProvider) GetThinkingBudget(modelName string) int {
	caps, ok := m.catalog.Resolve(modelName)
	if !ok {
		return 0
	}
	return caps.ThinkingBudget
}

func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}

// --- 调用记录 ---

// GenerateCalls 返回 GenerateContent 被调用的次数
func (m *MockProvider) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// LastRequest 返回最近一次请求
func (m *MockProvider) LastRequest() *llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Closed 报告 Close 是否被调用过
func (m *MockProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ llm.ModelProvider = (*MockProvider)(nil)
