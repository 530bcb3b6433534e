package providers

import (
	"context"

	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/llm/tokenizer"
	"go.uber.org/zap"
)

// CatalogProvider 承载各提供商共有的目录职责：
// 别名解析、限制过滤、能力查询、token 计数与推理预算。
// 具体提供商内嵌它，只需再实现线格式的 GenerateContent 与 Close。
type CatalogProvider struct {
	providerType llm.ProviderType
	catalog      *llm.Catalog
	restriction  llm.RestrictionPolicy
	logger       *zap.Logger
}

// NewCatalogProvider 构造目录基座。restriction 为 nil 时不做限制。
func NewCatalogProvider(t llm.ProviderType, catalog *llm.Catalog, restriction llm.RestrictionPolicy, logger *zap.Logger) *CatalogProvider {
	if restriction == nil {
		restriction = llm.PermitAllPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogProvider{
		providerType: t,
		catalog:      catalog,
		restriction:  restriction,
		logger:       logger,
	}
}

// Type 返回提供商类型。
func (b *CatalogProvider) Type() llm.ProviderType { return b.providerType }

// Catalog 返回模型目录。
func (b *CatalogProvider) Catalog() *llm.Catalog { return b.catalog }

// GetCapabilities 按名称（含别名）查询模型能力。
// 目录里没有返回 MODEL_NOT_FOUND；被限制策略拒绝返回 MODEL_RESTRICTED。
func (b *CatalogProvider) GetCapabilities(modelName string) (llm.ModelCapabilities, error) {
	caps, ok := b.catalog.Resolve(modelName)
	if !ok {
		return llm.ModelCapabilities{}, llm.NewModelNotFoundError(modelName)
	}
	if !b.restriction.IsAllowed(b.providerType, caps.ModelName, modelName) {
		return llm.ModelCapabilities{}, llm.NewModelRestrictedError(modelName)
	}
	return caps, nil
}

// ValidateModelName 报告该提供商是否服务这个名称。
// 名称必须能在目录中解析，且请求的字面名称要通过限制策略。
func (b *CatalogProvider) ValidateModelName(modelName string) bool {
	caps, ok := b.catalog.Resolve(modelName)
	if !ok {
		return false
	}
	return b.restriction.IsAllowed(b.providerType, caps.ModelName, modelName)
}

// ListModels 返回目录中的全部模型能力（不做限制过滤，
// 过滤由注册中心在列表层统一做，每个基础模型只判一次）。
func (b *CatalogProvider) ListModels() []llm.ModelCapabilities {
	return b.catalog.List()
}

// CountTokens 用模型对应的分词器计数。
func (b *CatalogProvider) CountTokens(_ context.Context, text, modelName string) (int, error) {
	canonical := modelName
	if caps, ok := b.catalog.Resolve(modelName); ok {
		canonical = caps.ModelName
	}
	return tokenizer.For(canonical).CountTokens(text)
}

// SupportsThinkingMode 报告模型是否有独立推理预算。
func (b *CatalogProvider) SupportsThinkingMode(modelName string) bool {
	caps, ok := b.catalog.Resolve(modelName)
	return ok && caps.SupportsThinking
}

// GetThinkingBudget 返回模型的推理 token 预算，不支持时为 0。
func (b *CatalogProvider) GetThinkingBudget(modelName string) int {
	caps, ok := b.catalog.Resolve(modelName)
	if !ok || !caps.SupportsThinking {
		return 0
	}
	return caps.ThinkingBudget
}
