// Package openai 配置 OpenAI 官方端点的 Provider。
package openai

import (
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/openaicompat"
	"go.uber.org/zap"
)

// DefaultBaseURL 官方托管端点。
const DefaultBaseURL = "https://api.openai.com"

// DefaultCatalog 内置模型目录。
func DefaultCatalog() (*llm.Catalog, error) {
	return llm.NewCatalog(llm.ProviderOpenAI, []llm.ModelCapabilities{
		{
			ModelName:               "gpt-4.1",
			Aliases:                 []string{"gpt4.1", "gpt-4-turbo-next"},
			ContextWindow:           1_047_576,
			MaxOutputTokens:         32_768,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			SupportsImages:          true,
			Temperature:             llm.MustTemperatureRange(0, 2, 1.0),
		},
		{
			ModelName:               "gpt-4o-mini",
			Aliases:                 []string{"4o-mini", "mini"},
			ContextWindow:           128_000,
			MaxOutputTokens:         16_384,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			SupportsImages:          true,
			Temperature:             llm.MustTemperatureRange(0, 2, 1.0),
		},
		{
			// o 系推理模型只接受默认温度
			ModelName:            "o3-mini",
			Aliases:              []string{"o3m"},
			ContextWindow:        200_000,
			MaxOutputTokens:      100_000,
			SupportsSystemPrompt: true,
			SupportsStreaming:    true,
			SupportsJSONMode:     true,
			SupportsThinking:     true,
			ThinkingBudget:       65_536,
			Temperature:          llm.FixedTemperature(1.0),
		},
	})
}

// New 创建 OpenAI Provider。
func New(cfg providers.OpenAIConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*openaicompat.Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}

	var extra map[string]string
	if cfg.Organization != "" {
		extra = map[string]string{"OpenAI-Organization": cfg.Organization}
	}

	return openaicompat.New(openaicompat.Options{
		Type:         llm.ProviderOpenAI,
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		AuthStyle:    openaicompat.AuthBearer,
		ExtraHeaders: extra,
		Catalog:      catalog,
		Restriction:  restriction,
		Logger:       logger,
	})
}
