// Package azure 配置 Azure 托管 OpenAI 部署的 Provider。
// 线格式与 OpenAI 相同，差异在认证头（api-key）、
// 按部署名组织的路径与 api-version 查询参数。
package azure

import (
	"fmt"

	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/providers/openaicompat"
	"github.com/BaSui01/modelgate/types"
	"go.uber.org/zap"
)

// DefaultAPIVersion 未配置时使用的 api-version。
const DefaultAPIVersion = "2024-10-21"

// New 创建 Azure Provider。目录由部署映射生成：
// 部署名成为模型别名，映射到的模型名为规范名。
func New(cfg providers.AzureConfig, restriction llm.RestrictionPolicy, logger *zap.Logger) (*openaicompat.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrConfiguration, "azure provider requires a resource base URL")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if len(cfg.Deployments) == 0 {
		return nil, types.NewError(types.ErrConfiguration, "azure provider requires at least one deployment mapping")
	}

	// model -> deployment 反查表，发送时把规范名换回部署名
	toDeployment := make(map[string]string, len(cfg.Deployments))
	models := make([]llm.ModelCapabilities, 0, len(cfg.Deployments))
	for deployment, model := range cfg.Deployments {
		toDeployment[model] = deployment
		models = append(models, llm.ModelCapabilities{
			ModelName:               model,
			Aliases:                 []string{deployment},
			ContextWindow:           128_000,
			MaxOutputTokens:         16_384,
			SupportsSystemPrompt:    true,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsJSONMode:        true,
			Temperature:             llm.MustTemperatureRange(0, 2, 1.0),
		})
	}

	catalog, err := llm.NewCatalog(llm.ProviderAzure, models)
	if err != nil {
		return nil, err
	}

	return openaicompat.New(openaicompat.Options{
		Type:      llm.ProviderAzure,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		AuthStyle: openaicompat.AuthAPIKeyHeader,
		// Azure 的路径带部署名，模型名字段由 MapModel 改写为部署名
		CompletionsPath: fmt.Sprintf("/openai/deployments/{model}/chat/completions?api-version=%s", cfg.APIVersion),
		MapModel: func(canonical string) string {
			if d, ok := toDeployment[canonical]; ok {
				return d
			}
			return canonical
		},
		Catalog:     catalog,
		Restriction: restriction,
		Logger:      logger,
	})
}
