package providers

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/BaSui01/modelgate/types"
)

// BaseProviderConfig 各提供商共用的配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// AllowedModels 该提供商的模型允许清单（空表示不限制）
	AllowedModels []string `json:"allowed_models,omitempty" yaml:"allowed_models,omitempty"`

	// MaxConcurrency 该提供商类型的并发上限覆盖（0 用默认值 10）
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// BreakerConfig 每提供商的熔断器调优。
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout,omitempty" yaml:"recovery_timeout,omitempty"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls,omitempty" yaml:"half_open_max_calls,omitempty"`
}

// GeminiConfig Gemini Provider 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Breaker            BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Breaker            BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// AzureConfig Azure 托管 OpenAI 部署配置
type AzureConfig struct {
	BaseProviderConfig `yaml:",inline"`
	// Deployments 部署名 -> 模型名映射
	Deployments map[string]string `json:"deployments,omitempty" yaml:"deployments,omitempty"`
	APIVersion  string            `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	Breaker     BreakerConfig     `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// OpenRouterConfig OpenRouter 聚合网关配置
type OpenRouterConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Breaker            BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// DIALConfig DIAL 聚合网关配置
type DIALConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Breaker            BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// CustomConfig 自定义 OpenAI 兼容端点配置（本地/私有部署）。
type CustomConfig struct {
	BaseProviderConfig `yaml:",inline"`
	// ModelName 端点默认服务的模型名
	ModelName string        `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	Breaker   BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// ValidateEndpoint 校验自定义端点 URL：
// 只接受 http/https，必须有主机名，显式端口必须在 [1,65535]。
// 配置错误在构造期立即失败，绝不进入重试。
func ValidateEndpoint(raw string) error {
	if raw == "" {
		return types.NewError(types.ErrInvalidURL, "custom endpoint URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return types.NewError(types.ErrInvalidURL,
			fmt.Sprintf("custom endpoint %q is not a valid URL", raw)).WithCause(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.NewError(types.ErrInvalidURL,
			fmt.Sprintf("custom endpoint %q: scheme must be http or https, got %q", raw, u.Scheme))
	}
	if u.Hostname() == "" {
		return types.NewError(types.ErrInvalidURL,
			fmt.Sprintf("custom endpoint %q: hostname is required", raw))
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return types.NewError(types.ErrInvalidURL,
				fmt.Sprintf("custom endpoint %q: port must be in [1, 65535]", raw))
		}
	}
	return nil
}
