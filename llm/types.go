package llm

import (
	"time"

	"github.com/BaSui01/modelgate/types"
)

// ProviderType 标识一个后端提供商家族（封闭枚举）。
type ProviderType string

const (
	// ProviderGemini Google Gemini 原生 API
	ProviderGemini ProviderType = "gemini"
	// ProviderOpenAI OpenAI 原生 API
	ProviderOpenAI ProviderType = "openai"
	// ProviderAzure Azure 托管的 OpenAI 部署
	ProviderAzure ProviderType = "azure"
	// ProviderOpenRouter OpenRouter 聚合网关（接受任意模型名）
	ProviderOpenRouter ProviderType = "openrouter"
	// ProviderDIAL DIAL 聚合网关
	ProviderDIAL ProviderType = "dial"
	// ProviderCustom 自定义 OpenAI 兼容端点（本地/私有部署）
	ProviderCustom ProviderType = "custom"
)

// ProviderPriority 定义路由时的固定优先级：
// 原生 API 优先，自定义端点次之，接受任意名称的聚合网关垫底，
// 避免聚合网关抢走原生提供商的模型。
// Azure 排在 OpenAI 之前：同一模型家族存在两条凭据路径时，
// 托管部署的目录优先（见 Registry.GetProviderForModel）。
var ProviderPriority = []ProviderType{
	ProviderGemini,
	ProviderAzure,
	ProviderOpenAI,
	ProviderCustom,
	ProviderOpenRouter,
	ProviderDIAL,
}

func (t ProviderType) String() string { return string(t) }

// Valid 报告该值是否属于封闭枚举。
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderGemini, ProviderOpenAI, ProviderAzure,
		ProviderOpenRouter, ProviderDIAL, ProviderCustom:
		return true
	}
	return false
}

// GenerateRequest 是一次生成调用的统一入参。
type GenerateRequest struct {
	// RequestID 请求标识，批量调度用于结果重组；为空时自动生成
	RequestID string `json:"request_id,omitempty"`
	// Model 用户提供的模型名（规范名或别名，大小写不敏感）
	Model string `json:"model"`
	// Prompt 用户提示词
	Prompt string `json:"prompt"`
	// SystemPrompt 系统提示词（可选）
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Temperature 采样温度，发送前按模型约束校验/截断
	Temperature float64 `json:"temperature,omitempty"`
	// MaxOutputTokens 输出 token 上限（0 表示用模型默认值）
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
	// ThinkingMode 是否为支持推理预算的模型启用思考模式
	ThinkingMode bool `json:"thinking_mode,omitempty"`
	// Timeout 单次调用超时（0 表示用连接池默认值）
	Timeout time.Duration `json:"timeout,omitempty"`
	// Metadata 透传元数据
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Usage 记录一次调用的 token 消耗。
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GenerateResponse 是一次生成调用的统一出参。
type GenerateResponse struct {
	Content   string         `json:"content"`
	Usage     Usage          `json:"usage"`
	ModelName string         `json:"model_name"`
	Provider  ProviderType   `json:"provider"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// ModelAvailability 是可用性缓存条目。
// TTL 过期的条目视为"未知"而非"不可用"。
type ModelAvailability struct {
	Model       string          `json:"model"`
	Available   bool            `json:"available"`
	LastChecked time.Time       `json:"last_checked"`
	ErrorCode   types.ErrorCode `json:"error_code,omitempty"`
}
