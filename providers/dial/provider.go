// Package dial 配置 DIAL 聚合网关的 Provider。
// DIAL 以部署名组织路径（与 Azure 同构），认证用 Api-Key 头。
package dial

import (
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/openaicompat"
	"github.com/BaSui01/modelgate/types"
	"go.uber.org/zap"
)

// DefaultCatalog 内置模型目录。
func DefaultCatalog() (*llm.Catalog, error) {
	return llm.NewCatalog(llm.ProviderDIAL, []llm.ModelCapabilities{
		{
			ModelName:               "gpt-4o",
			Aliases:                 []string{"dial-gpt-4o"},
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
			ModelName:            "anthropic.claude-v3-5-sonnet",
			Aliases:              []string{"dial-claude-3.5"},
			ContextWindow:        200_000,
			MaxOutputTokens:      8_192,
			SupportsSystemPrompt: true,
			SupportsStreaming:    true,
			SupportsImages:       true,
			Temperature:          llm.MustTemperatureRange(0, 1, 1.0),
		},
	})
}

// New 创建 DIAL Provider。BaseURL 指向部署的 DIAL Core 实例，必填。
func New(cfg providers.DIALConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*openaicompat.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrConfiguration, "dial provider requires a core base URL")
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return openaicompat.New(openaicompat.Options{
		Type:            llm.ProviderDIAL,
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		AuthStyle:       openaicompat.AuthAPIKeyHeader,
		CompletionsPath: "/openai/deployments/{model}/chat/completions",
		Catalog:         catalog,
		Restriction:     restriction,
		Logger:          logger,
	})
}
