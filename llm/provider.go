package llm

import (
	"context"
)

// ModelProvider 定义了统一的后端适配接口，便于路由与保护。
// 各厂商的线格式转换、token 计数与文件编码由具体实现负责，
// 核心层只依赖这份能力契约。
type ModelProvider interface {
	// Type 返回提供商类型
	Type() ProviderType

	// GetCapabilities 返回模型能力，未知模型返回 MODEL_NOT_FOUND 错误
	GetCapabilities(modelName string) (ModelCapabilities, error)

	// ValidateModelName 报告该提供商是否服务这个名称（含自有别名表与限制校验）
	ValidateModelName(modelName string) bool

	// ListModels 返回该提供商目录中的全部模型能力
	ListModels() []ModelCapabilities

	// GenerateContent 发起一次生成调用，返回完整响应
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// CountTokens 返回文本在指定模型下的 token 数
	CountTokens(ctx context.Context, text, modelName string) (int, error)

	// SupportsThinkingMode 报告模型是否有独立的推理 token 预算
	SupportsThinkingMode(modelName string) bool

	// GetThinkingBudget 返回模型的推理预算（不支持时为 0）
	GetThinkingBudget(modelName string) int

	// Close 释放连接池等资源，幂等
	Close() error
}

// ProviderFactory 按环境凭据构造一个提供商实例。
// 注册中心在首次解析到该类型时惰性调用。
type ProviderFactory func() (ModelProvider, error)
