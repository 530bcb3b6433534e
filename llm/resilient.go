package llm

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/modelgate/internal/metrics"
	"github.com/BaSui01/modelgate/llm/circuitbreaker"
	"github.com/BaSui01/modelgate/llm/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ResilientProvider 为底层 Provider 叠加熔断与重试能力。
// 遵循装饰器模式：显式持有熔断器与重试器并委托，而不是混入继承。
// 熔断器只把整个重试循环的最终结果记为一次成功/失败，
// 从不按单次尝试计数。
//
// 经过这层包装后调用方只会看到四种结果之一：
// 成功响应、*retry.ExhaustedError、*circuitbreaker.OpenError、
// *ModelNotFoundError —— 裸传输错误不会泄漏出去。
type ResilientProvider struct {
	provider ModelProvider
	breaker  circuitbreaker.CircuitBreaker
	retryer  retry.Retryer

	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// ResilientConfig 弹性包装配置。
type ResilientConfig struct {
	// Endpoint 熔断器保护的端点标识（通常是 base URL）
	Endpoint string

	// Breaker 熔断器配置，nil 用默认值。
	// 默认分类器把所有上游错误都计入熔断失败：持续的永久性错误
	// （格式错误、上下文超长、硬配额耗尽）同样说明端点当前不可用。
	Breaker *circuitbreaker.Config

	// Retry 重试策略，nil 用默认的 [1,3,5,8] 秒四次尝试
	Retry *retry.Policy
}

// NewResilientProvider 包装一个 Provider。collector 可以为 nil。
func NewResilientProvider(p ModelProvider, cfg *ResilientConfig, collector *metrics.Collector, logger *zap.Logger) *ResilientProvider {
	if cfg == nil {
		cfg = &ResilientConfig{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = p.Type().String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breakerCfg := cfg.Breaker
	if breakerCfg == nil {
		breakerCfg = circuitbreaker.DefaultConfig()
	}
	if collector != nil {
		// 状态变更直通指标。配置可能被多个包装实例共享，
		// 先拷贝再挂回调，避免重建时在原 Config 上层层套娃
		cp := *breakerCfg
		endpoint := cfg.Endpoint
		prev := cp.OnStateChange
		cp.OnStateChange = func(from, to circuitbreaker.State) {
			collector.RecordBreakerTransition(endpoint, from.String(), to.String())
			if prev != nil {
				prev(from, to)
			}
		}
		breakerCfg = &cp
	}

	return &ResilientProvider{
		provider:  p,
		breaker:   circuitbreaker.New(cfg.Endpoint, breakerCfg, logger),
		retryer:   retry.New(cfg.Retry, logger),
		collector: collector,
		tracer:    otel.Tracer("modelgate/llm"),
		logger:    logger,
	}
}

// Breaker 暴露熔断器，供运维检视与手动重置。
func (rp *ResilientProvider) Breaker() circuitbreaker.CircuitBreaker { return rp.breaker }

// GenerateContent 实现 ModelProvider.GenerateContent。
// 温度在发送前按模型约束收敛；整个重试循环在熔断器内执行。
func (rp *ResilientProvider) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	caps, err := rp.provider.GetCapabilities(req.Model)
	if err != nil {
		return nil, err
	}
	tc := caps.TemperatureOrDefault()
	if !tc.Validate(req.Temperature) {
		clamped := tc.Clamp(req.Temperature)
		rp.logger.Debug("温度超出模型约束，已收敛",
			zap.String("model", req.Model),
			zap.Float64("requested", req.Temperature),
			zap.Float64("clamped", clamped))
		req.Temperature = clamped
	}

	ctx, span := rp.tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("provider", rp.provider.Type().String()),
			attribute.String("model", req.Model),
		))
	defer span.End()

	start := time.Now()
	result, err := rp.breaker.CallWithResult(ctx, func() (any, error) {
		return rp.retryer.DoWithResult(ctx, func() (any, error) {
			return rp.provider.GenerateContent(ctx, req)
		})
	})
	rp.record(req.Model, start, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	resp := result.(*GenerateResponse)
	if rp.collector != nil {
		rp.collector.RecordTokens(rp.provider.Type().String(), caps.ModelName,
			resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	span.SetAttributes(attribute.Int("tokens.total", resp.Usage.TotalTokens))
	return resp, nil
}

func (rp *ResilientProvider) record(model string, start time.Time, err error) {
	if rp.collector == nil {
		return
	}
	backend := rp.provider.Type().String()
	status := "ok"
	var openErr *circuitbreaker.OpenError
	switch {
	case err == nil:
	case errors.As(err, &openErr):
		status = "rejected"
		rp.collector.RecordBreakerRejection(openErr.Endpoint)
	default:
		status = "error"
	}
	rp.collector.RecordRequest(backend, model, status, time.Since(start))
}

// Type 实现 ModelProvider.Type
func (rp *ResilientProvider) Type() ProviderType { return rp.provider.Type() }

// GetCapabilities 实现 ModelProvider.GetCapabilities
func (rp *ResilientProvider) GetCapabilities(modelName string) (ModelCapabilities, error) {
	return rp.provider.GetCapabilities(modelName)
}

// ValidateModelName 实现 ModelProvider.ValidateModelName
func (rp *ResilientProvider) ValidateModelName(modelName string) bool {
	return rp.provider.ValidateModelName(modelName)
}

// ListModels 实现 ModelProvider.ListModels
func (rp *ResilientProvider) ListModels() []ModelCapabilities {
	return rp.provider.ListModels()
}

// CountTokens 实现 ModelProvider.CountTokens
func (rp *ResilientProvider) CountTokens(ctx context.Context, text, modelName string) (int, error) {
	return rp.provider.CountTokens(ctx, text, modelName)
}

// SupportsThinkingMode 实现 ModelProvider.SupportsThinkingMode
func (rp *ResilientProvider) SupportsThinkingMode(modelName string) bool {
	return rp.provider.SupportsThinkingMode(modelName)
}

// GetThinkingBudget 实现 ModelProvider.GetThinkingBudget
func (rp *ResilientProvider) GetThinkingBudget(modelName string) int {
	return rp.provider.GetThinkingBudget(modelName)
}

// Close 实现 ModelProvider.Close
func (rp *ResilientProvider) Close() error {
	return rp.provider.Close()
}

// 编译期接口检查
var _ ModelProvider = (*ResilientProvider)(nil)
