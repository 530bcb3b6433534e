// Package openrouter 配置 OpenRouter 聚合网关的 Provider。
// 模型名带厂商前缀（vendor/model），线格式为标准 OpenAI 兼容协议。
package openrouter

import (
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/openaicompat"
	"go.uber.org/zap"
)

// DefaultBaseURL 官方托管端点。
const DefaultBaseURL = "https://openrouter.ai/api"

// DefaultCatalog 内置模型目录。
func DefaultCatalog() (*llm.Catalog, error) {
	return llm.NewCatalog(llm.ProviderOpenRouter, []llm.ModelCapabilities{
		{
			ModelName:               "anthropic/claude-sonnet-4",
			Aliases:                 []string{"claude-sonnet-4", "sonnet"},
			ContextWindow:           200_000,
			MaxOutputTokens:         64_000,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsImages:          true,
			SupportsThinking:        true,
			ThinkingBudget:          32_000,
			Temperature:             llm.MustTemperatureRange(0, 1, 1.0),
		},
		{
			ModelName:               "meta-llama/llama-3.3-70b-instruct",
			Aliases:                 []string{"llama-3.3-70b", "llama3.3"},
			ContextWindow:           131_072,
			MaxOutputTokens:         8_192,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			Temperature:             llm.MustTemperatureRange(0, 2, 0.7),
		},
		{
			ModelName:            "deepseek/deepseek-r1",
			Aliases:              []string{"deepseek-r1", "r1"},
			ContextWindow:        163_840,
			MaxOutputTokens:      16_384,
			SupportsSystemPrompt: true,
			SupportsStreaming:    true,
			SupportsThinking:     true,
			ThinkingBudget:       32_768,
			Temperature:          llm.MustTemperatureRange(0, 2, 0.6),
		},
	})
}

// New 创建 OpenRouter Provider。
func New(cfg providers.OpenRouterConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*openaicompat.Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return openaicompat.New(openaicompat.Options{
		Type:      llm.ProviderOpenRouter,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		AuthStyle: openaicompat.AuthBearer,
		// OpenRouter 要求归因头用于排行与配额归属
		ExtraHeaders: map[string]string{
			"HTTP-Referer": "https://github.com/BaSui01/modelgate",
			"X-Title":      "modelgate",
		},
		Catalog:     catalog,
		Restriction: restriction,
		Logger:      logger,
	})
}
