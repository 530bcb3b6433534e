// Package openaicompat 实现 OpenAI Chat Completions 线格式的通用 Provider。
// OpenAI、Azure、OpenRouter、DIAL 与自定义端点都讲这套协议，
// 差异只在端点路径、认证头与模型名映射，由 Options 注入。
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/modelgate/internal/httppool"
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/types"
	"go.uber.org/zap"
)

// AuthStyle 指定凭据如何进入请求头。
type AuthStyle int

const (
	// AuthBearer 标准 "Authorization: Bearer <key>"
	AuthBearer AuthStyle = iota
	// AuthAPIKeyHeader Azure 风格 "api-key: <key>"
	AuthAPIKeyHeader
)

// Options 配置一个 OpenAI 兼容 Provider 实例。
type Options struct {
	Type      llm.ProviderType
	BaseURL   string
	APIKey    string
	AuthStyle AuthStyle

	// CompletionsPath chat completions 路径，空值用 "/v1/chat/completions"。
	// 路径中的 "{model}" 占位符会被替换为映射后的模型名（Azure 部署路径用）。
	CompletionsPath string
	// ExtraHeaders 每请求附加头（如 OpenRouter 的归因头）
	ExtraHeaders map[string]string
	// MapModel 发送前的模型名改写（如 Azure 的部署名映射）；nil 为恒等
	MapModel func(canonical string) string

	Catalog     *llm.Catalog
	Restriction llm.RestrictionPolicy
	Pool        *httppool.Config
	Logger      *zap.Logger
}

// Provider 经连接池向 OpenAI 兼容端点发起生成调用。
type Provider struct {
	*providers.CatalogProvider

	opts Options
	pool *httppool.Pool
}

// New 构造 Provider。BaseURL 必须非空；池配置缺省按端点主机推断。
func New(opts Options) (*Provider, error) {
	if opts.BaseURL == "" {
		return nil, types.NewError(types.ErrInvalidURL,
			fmt.Sprintf("%s provider requires a base URL", opts.Type))
	}
	if opts.CompletionsPath == "" {
		opts.CompletionsPath = "/v1/chat/completions"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	poolCfg := httppool.ConfigForEndpoint(opts.BaseURL)
	if opts.Pool != nil {
		poolCfg = *opts.Pool
	}

	return &Provider{
		CatalogProvider: providers.NewCatalogProvider(opts.Type, opts.Catalog, opts.Restriction, opts.Logger),
		opts:            opts,
		pool:            httppool.New(opts.BaseURL, poolCfg, opts.Logger),
	}, nil
}

// Pool 返回底层连接池（测试与运维观测用）。
func (p *Provider) Pool() *httppool.Pool { return p.pool }

// ---------------------------------------------------------------------------
// 线格式
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// GenerateContent 发起一次 chat completions 调用。
func (p *Provider) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	caps, err := p.GetCapabilities(req.Model)
	if err != nil {
		return nil, err
	}

	wireModel := caps.ModelName
	if p.opts.MapModel != nil {
		wireModel = p.opts.MapModel(caps.ModelName)
	}

	body := chatRequest{
		Model:     wireModel,
		MaxTokens: req.MaxOutputTokens,
	}
	if req.SystemPrompt != "" && caps.SupportsSystemPrompt {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal chat request").WithCause(err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	path := strings.ReplaceAll(p.opts.CompletionsPath, "{model}", url.PathEscape(wireModel))
	endpoint := strings.TrimRight(p.opts.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build chat request").WithCause(err)
	}
	p.setHeaders(httpReq)

	start := time.Now()
	resp, err := p.pool.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s request failed", p.Type())).WithCause(err).WithProvider(p.Type().String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read chat response").WithCause(err).WithProvider(p.Type().String())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode chat response").WithCause(err).WithProvider(p.Type().String())
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "chat response has no choices").WithProvider(p.Type().String())
	}

	result := &llm.GenerateResponse{
		Content:   out.Choices[0].Message.Content,
		ModelName: caps.ModelName,
		Provider:  p.Type(),
		CreatedAt: time.Now(),
	}
	if out.Usage != nil {
		result.Usage = llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
	}

	p.opts.Logger.Debug("chat completion finished",
		zap.String("provider", p.Type().String()),
		zap.String("model", caps.ModelName),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", result.Usage.TotalTokens))
	return result, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch p.opts.AuthStyle {
	case AuthAPIKeyHeader:
		req.Header.Set("api-key", p.opts.APIKey)
	default:
		if p.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
		}
	}
	for k, v := range p.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// mapHTTPError 把上游 HTTP 状态映射为带可重试标记的结构化错误。
// 429 的报文原样保留在 Message 里，重试分类器要靠它识别配额类终态。
func (p *Provider) mapHTTPError(status int, raw []byte) error {
	msg := upstreamMessage(raw)

	var e *types.Error
	switch {
	case status == http.StatusUnauthorized:
		e = types.NewError(types.ErrAuthentication, msg)
	case status == http.StatusForbidden:
		e = types.NewError(types.ErrForbidden, msg)
	case status == http.StatusNotFound:
		e = types.NewError(types.ErrModelNotFound, msg)
	case status == http.StatusRequestEntityTooLarge:
		e = types.NewError(types.ErrContextTooLong, msg)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	case status >= 400:
		e = types.NewError(types.ErrInvalidRequest, msg)
	default:
		e = types.NewError(types.ErrUpstreamError, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(p.Type().String())
}

func upstreamMessage(raw []byte) string {
	var ae apiError
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 512 {
		s = s[:512]
	}
	if s == "" {
		s = "upstream returned an error with an empty body"
	}
	return s
}

// Close 释放连接池。幂等。
func (p *Provider) Close() error {
	p.pool.Close()
	return nil
}

var _ llm.ModelProvider = (*Provider)(nil)
