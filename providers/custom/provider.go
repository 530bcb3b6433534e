// Package custom 配置自定义 OpenAI 兼容端点的 Provider，
// 面向 vLLM、Ollama、llama.cpp server 等私有部署。
// 端点 URL 在构造期严格校验；本地端点自动获得宽松的池超时。
package custom

import (
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/openaicompat"
	"go.uber.org/zap"
)

// New 创建自定义端点 Provider。目录只有配置里声明的那个模型，
// 上下文窗口未知时按保守默认值登记。
func New(cfg providers.CustomConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*openaicompat.Provider, error) {
	if err := providers.ValidateEndpoint(cfg.BaseURL); err != nil {
		return nil, err
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "default"
	}

	catalog, err := llm.NewCatalog(llm.ProviderCustom, []llm.ModelCapabilities{
		{
			ModelName:            modelName,
			ContextWindow:        32_768,
			MaxOutputTokens:      8_192,
			SupportsSystemPrompt: true,
			SupportsStreaming:    true,
			Temperature:          llm.MustTemperatureRange(0, 2, 0.7),
		},
	})
	if err != nil {
		return nil, err
	}

	return openaicompat.New(openaicompat.Options{
		Type:        llm.ProviderCustom,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		AuthStyle:   openaicompat.AuthBearer,
		Catalog:     catalog,
		Restriction: restriction,
		Logger:      logger,
	})
}
