// Package factory wires configuration into a ready-to-use provider registry.
// It imports all provider sub-packages and maps provider types to their
// constructors, breaking the import cycle that would occur if this logic
// lived in the llm package directly.
package factory

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/modelgate/config"
	"github.com/BaSui01/modelgate/internal/gate"
	"github.com/BaSui01/modelgate/internal/metrics"
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/llm/circuitbreaker"
	"github.com/BaSui01/modelgate/llm/retry"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/azure"
	"github.com/BaSui01/modelgate/providers/custom"
	"github.com/BaSui01/modelgate/providers/dial"
	"github.com/BaSui01/modelgate/providers/gemini"
	"github.com/BaSui01/modelgate/providers/openai"
	"github.com/BaSui01/modelgate/providers/openrouter"
	"github.com/BaSui01/modelgate/types"
)

// BuildRegistry 依配置装配完整的并发注册中心：
// 每个配置了凭据的提供商注册一个工厂，实例在首次解析到该类型时才构造，
// 并统一套上熔断 + 重试的弹性包装。
func BuildRegistry(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*llm.AsyncRegistry, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrConfiguration, "nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	restriction := restrictionFromConfig(cfg, logger)

	availability, err := availabilityFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := llm.NewRegistry(
		llm.WithRestrictionPolicy(restriction),
		llm.WithAvailabilityStore(availability),
		llm.WithLogger(logger),
	)

	retryPolicy := retryFromConfig(cfg)

	register := func(t llm.ProviderType, endpoint string, breaker providers.BreakerConfig, build func() (llm.ModelProvider, error)) {
		breakerCfg := breakerFromConfig(cfg.Breaker, breaker)
		reg.RegisterFactory(t, func() (llm.ModelProvider, error) {
			p, err := build()
			if err != nil {
				return nil, err
			}
			return llm.NewResilientProvider(p, &llm.ResilientConfig{
				Endpoint: endpoint,
				Breaker:  breakerCfg,
				Retry:    retryPolicy,
			}, collector, logger), nil
		})
	}

	pc := cfg.Providers
	if pc.Gemini.APIKey != "" {
		register(llm.ProviderGemini, orDefault(pc.Gemini.BaseURL, gemini.DefaultBaseURL), pc.Gemini.Breaker, func() (llm.ModelProvider, error) {
			return gemini.New(pc.Gemini, restriction, logger)
		})
	}
	if pc.OpenAI.APIKey != "" {
		register(llm.ProviderOpenAI, orDefault(pc.OpenAI.BaseURL, openai.DefaultBaseURL), pc.OpenAI.Breaker, func() (llm.ModelProvider, error) {
			return openai.New(pc.OpenAI, restriction, logger)
		})
	}
	if pc.Azure.APIKey != "" {
		register(llm.ProviderAzure, pc.Azure.BaseURL, pc.Azure.Breaker, func() (llm.ModelProvider, error) {
			return azure.New(pc.Azure, restriction, logger)
		})
	}
	if pc.OpenRouter.APIKey != "" {
		register(llm.ProviderOpenRouter, orDefault(pc.OpenRouter.BaseURL, openrouter.DefaultBaseURL), pc.OpenRouter.Breaker, func() (llm.ModelProvider, error) {
			return openrouter.New(pc.OpenRouter, restriction, logger)
		})
	}
	if pc.DIAL.APIKey != "" {
		register(llm.ProviderDIAL, pc.DIAL.BaseURL, pc.DIAL.Breaker, func() (llm.ModelProvider, error) {
			return dial.New(pc.DIAL, restriction, logger)
		})
	}
	if pc.Custom.BaseURL != "" {
		register(llm.ProviderCustom, pc.Custom.BaseURL, pc.Custom.Breaker, func() (llm.ModelProvider, error) {
			return custom.New(pc.Custom, restriction, logger)
		})
	}

	gates := gate.NewRegistry(cfg.Concurrency.DefaultLimit, logger)
	for backend, limit := range cfg.Concurrency.Limits {
		gates.SetLimit(backend, limit)
	}
	applyConcurrencyOverrides(gates, pc)

	return llm.NewAsyncRegistry(reg, gates, collector, logger), nil
}

// restrictionFromConfig 把配置里的允许清单转成限制策略。
// restrictions 段与每提供商的 allowed_models 合并，任一来源命中即放行。
func restrictionFromConfig(cfg *config.Config, logger *zap.Logger) llm.RestrictionPolicy {
	typed := make(map[llm.ProviderType][]string)
	for key, list := range cfg.AllowLists() {
		typed[llm.ProviderType(key)] = list
	}

	pc := cfg.Providers
	merge := func(t llm.ProviderType, list []string) {
		if len(list) > 0 {
			typed[t] = append(typed[t], list...)
		}
	}
	merge(llm.ProviderGemini, pc.Gemini.AllowedModels)
	merge(llm.ProviderOpenAI, pc.OpenAI.AllowedModels)
	merge(llm.ProviderAzure, pc.Azure.AllowedModels)
	merge(llm.ProviderOpenRouter, pc.OpenRouter.AllowedModels)
	merge(llm.ProviderDIAL, pc.DIAL.AllowedModels)
	merge(llm.ProviderCustom, pc.Custom.AllowedModels)

	if len(typed) == 0 {
		return llm.PermitAllPolicy()
	}
	return llm.NewAllowListPolicy(typed, logger)
}

// availabilityFromConfig 按配置选择可用性缓存后端。
func availabilityFromConfig(cfg *config.Config, logger *zap.Logger) (llm.AvailabilityStore, error) {
	switch cfg.Availability.Backend {
	case "", "memory":
		return llm.NewMemoryAvailabilityStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		return llm.NewRedisAvailabilityStore(client, "", logger), nil
	default:
		return nil, types.NewError(types.ErrConfiguration,
			"unknown availability backend "+cfg.Availability.Backend)
	}
}

// breakerFromConfig 全局默认值被每提供商覆盖项逐字段覆盖。
func breakerFromConfig(global config.BreakerConfig, override providers.BreakerConfig) *circuitbreaker.Config {
	out := circuitbreaker.Config{
		FailureThreshold: global.FailureThreshold,
		RecoveryTimeout:  global.RecoveryTimeout,
		HalfOpenMaxCalls: global.HalfOpenMaxCalls,
	}
	if override.FailureThreshold > 0 {
		out.FailureThreshold = override.FailureThreshold
	}
	if override.RecoveryTimeout > 0 {
		out.RecoveryTimeout = override.RecoveryTimeout
	}
	if override.HalfOpenMaxCalls > 0 {
		out.HalfOpenMaxCalls = override.HalfOpenMaxCalls
	}
	return &out
}

// retryFromConfig 重试配置缺省回落到默认策略。
func retryFromConfig(cfg *config.Config) *retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if len(cfg.Retry.Delays) > 0 {
		p.Delays = cfg.Retry.Delays
	}
	return p
}

// applyConcurrencyOverrides 提供商配置里的 MaxConcurrency 覆盖并发门上限。
func applyConcurrencyOverrides(gates *gate.Registry, pc config.ProvidersConfig) {
	set := func(t llm.ProviderType, limit int) {
		if limit > 0 {
			gates.SetLimit(t.String(), limit)
		}
	}
	set(llm.ProviderGemini, pc.Gemini.MaxConcurrency)
	set(llm.ProviderOpenAI, pc.OpenAI.MaxConcurrency)
	set(llm.ProviderAzure, pc.Azure.MaxConcurrency)
	set(llm.ProviderOpenRouter, pc.OpenRouter.MaxConcurrency)
	set(llm.ProviderDIAL, pc.DIAL.MaxConcurrency)
	set(llm.ProviderCustom, pc.Custom.MaxConcurrency)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
