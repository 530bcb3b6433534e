// Package gemini 实现 Gemini generateContent 线格式的 Provider。
// 与 OpenAI 系协议不同：认证走 x-goog-api-key 头，模型名嵌在路径里，
// system 指令与生成参数有独立的报文位置。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/modelgate/internal/httppool"
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/types"
	"go.uber.org/zap"
)

// DefaultBaseURL 官方托管端点。
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultCatalog 内置模型目录。
func DefaultCatalog() (*llm.Catalog, error) {
	return llm.NewCatalog(llm.ProviderGemini, []llm.ModelCapabilities{
		{
			ModelName:               "gemini-2.5-pro",
			Aliases:                 []string{"gemini-pro", "pro"},
			ContextWindow:           1_048_576,
			MaxOutputTokens:         65_536,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			SupportsImages:          true,
			SupportsThinking:        true,
			ThinkingBudget:          32_768,
			Temperature:             llm.MustTemperatureRange(0, 2, 1.0),
		},
		{
			ModelName:               "gemini-2.5-flash",
			Aliases:                 []string{"gemini-flash", "flash"},
			ContextWindow:           1_048_576,
			MaxOutputTokens:         65_536,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			SupportsImages:          true,
			SupportsThinking:        true,
			ThinkingBudget:          24_576,
			Temperature:             llm.MustTemperatureRange(0, 2, 1.0),
		},
		{
			ModelName:            "gemini-2.0-flash-lite",
			Aliases:              []string{"flash-lite"},
			ContextWindow:        1_048_576,
			MaxOutputTokens:      8_192,
			SupportsSystemPrompt: true,
			SupportsStreaming:    true,
			SupportsJSONMode:     true,
			Temperature:          llm.MustTemperatureRange(0, 2, 1.0),
		},
	})
}

// Provider 经连接池向 Gemini API 发起生成调用。
type Provider struct {
	*providers.CatalogProvider

	cfg    providers.GeminiConfig
	pool   *httppool.Pool
	logger *zap.Logger
}

// New 创建 Gemini Provider。
func New(cfg providers.GeminiConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return &Provider{
		CatalogProvider: providers.NewCatalogProvider(llm.ProviderGemini, catalog, restriction, logger),
		cfg:             cfg,
		pool:            httppool.New(cfg.BaseURL, httppool.ConfigForEndpoint(cfg.BaseURL), logger),
		logger:          logger,
	}, nil
}

// ---------------------------------------------------------------------------
// 线格式
// ---------------------------------------------------------------------------

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user 或 model
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *struct {
		ThinkingBudget int `json:"thinkingBudget"`
	} `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent 发起一次 generateContent 调用。
func (p *Provider) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	caps, err := p.GetCapabilities(req.Model)
	if err != nil {
		return nil, err
	}

	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	genCfg := &geminiGenerationConfig{MaxOutputTokens: req.MaxOutputTokens}
	if req.Temperature != 0 {
		t := req.Temperature
		genCfg.Temperature = &t
	}
	if req.ThinkingMode && caps.SupportsThinking {
		genCfg.ThinkingConfig = &struct {
			ThinkingBudget int `json:"thinkingBudget"`
		}{ThinkingBudget: caps.ThinkingBudget}
	}
	body.GenerationConfig = genCfg

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal generate request").WithCause(err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), caps.ModelName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build generate request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	start := time.Now()
	resp, err := p.pool.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "gemini request failed").
			WithCause(err).WithProvider(llm.ProviderGemini.String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read generate response").
			WithCause(err).WithProvider(llm.ProviderGemini.String())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, raw)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode generate response").
			WithCause(err).WithProvider(llm.ProviderGemini.String())
	}
	if len(out.Candidates) == 0 {
		return nil, types.NewError(types.ErrContentFiltered, "gemini returned no candidates").
			WithProvider(llm.ProviderGemini.String())
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	result := &llm.GenerateResponse{
		Content:   sb.String(),
		ModelName: caps.ModelName,
		Provider:  llm.ProviderGemini,
		CreatedAt: time.Now(),
	}
	if out.UsageMetadata != nil {
		result.Usage = llm.Usage{
			InputTokens:  out.UsageMetadata.PromptTokenCount,
			OutputTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  out.UsageMetadata.TotalTokenCount,
		}
	}

	p.logger.Debug("gemini generation finished",
		zap.String("model", caps.ModelName),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", result.Usage.TotalTokens))
	return result, nil
}

// mapHTTPError 429 的 RESOURCE_EXHAUSTED 报文保留原文，
// 重试分类器靠它区分瞬时限速与配额耗尽。
func (p *Provider) mapHTTPError(status int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var ge geminiErrorResp
	if err := json.Unmarshal(raw, &ge); err == nil && ge.Error.Message != "" {
		msg = ge.Error.Status + ": " + ge.Error.Message
	}

	var e *types.Error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e = types.NewError(types.ErrAuthentication, msg)
	case status == http.StatusNotFound:
		e = types.NewError(types.ErrModelNotFound, msg)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	case status >= 400:
		e = types.NewError(types.ErrInvalidRequest, msg)
	default:
		e = types.NewError(types.ErrUpstreamError, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(llm.ProviderGemini.String())
}

// Close 释放连接池。
func (p *Provider) Close() error {
	p.pool.Close()
	return nil
}

var _ llm.ModelProvider = (*Provider)(nil)
