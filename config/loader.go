// =============================================================================
// 📦 ModelGate 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("modelgate.yaml").
//	    WithEnvPrefix("MODELGATE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/modelgate/providers"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ModelGate 的完整配置结构
type Config struct {
	// Providers 各后端提供商配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Restrictions 每提供商的模型允许清单（逗号分隔）
	Restrictions RestrictionsConfig `yaml:"restrictions" env:"RESTRICTIONS"`

	// Concurrency 并发门配置
	Concurrency ConcurrencyConfig `yaml:"concurrency" env:"CONCURRENCY"`

	// Breaker 熔断器全局默认值
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`

	// Retry 重试策略
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Availability 可用性缓存配置
	Availability AvailabilityConfig `yaml:"availability" env:"AVAILABILITY"`

	// Redis 共享缓存配置（可用性缓存多副本共享时使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ProvidersConfig 各提供商的凭据与端点
type ProvidersConfig struct {
	Gemini     providers.GeminiConfig     `yaml:"gemini" env:"GEMINI"`
	OpenAI     providers.OpenAIConfig     `yaml:"openai" env:"OPENAI"`
	Azure      providers.AzureConfig      `yaml:"azure" env:"AZURE"`
	OpenRouter providers.OpenRouterConfig `yaml:"openrouter" env:"OPENROUTER"`
	DIAL       providers.DIALConfig       `yaml:"dial" env:"DIAL"`
	Custom     providers.CustomConfig     `yaml:"custom" env:"CUSTOM"`
}

// RestrictionsConfig 模型限制清单；空清单表示该提供商不受限
type RestrictionsConfig struct {
	Gemini     []string `yaml:"gemini" env:"GEMINI"`
	OpenAI     []string `yaml:"openai" env:"OPENAI"`
	Azure      []string `yaml:"azure" env:"AZURE"`
	OpenRouter []string `yaml:"openrouter" env:"OPENROUTER"`
	DIAL       []string `yaml:"dial" env:"DIAL"`
	Custom     []string `yaml:"custom" env:"CUSTOM"`
}

// ConcurrencyConfig 并发门配置
type ConcurrencyConfig struct {
	// DefaultLimit 每后端类型默认并发上限
	DefaultLimit int `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	// Limits 按后端类型覆盖（键为提供商名）
	Limits map[string]int `yaml:"limits" env:"-"`
}

// BreakerConfig 熔断器默认参数
type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// RecoveryTimeout 熔断后多久进入半开探测
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	// HalfOpenMaxCalls 半开状态允许的探测调用数
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// RetryConfig 重试策略参数
type RetryConfig struct {
	// MaxAttempts 总尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// Delays 各次重试前的等待时间
	Delays []time.Duration `yaml:"delays" env:"-"`
}

// AvailabilityConfig 可用性缓存参数
type AvailabilityConfig struct {
	// Backend memory 或 redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// TTL 探测结果的缓存时长
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MODELGATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 内置校验 + 自定义验证器
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "-" {
			continue
		}

		// 内嵌结构体（如 BaseProviderConfig）沿用父级前缀
		envKey := prefix
		if envTag != "" {
			envKey = prefix + "_" + envTag
		} else if !fieldType.Anonymous {
			continue
		}

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片（允许清单用）
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, "breaker failure_threshold must be positive")
	}
	if c.Breaker.RecoveryTimeout < 0 {
		errs = append(errs, "breaker recovery_timeout must not be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry max_attempts must be positive")
	}
	if c.Concurrency.DefaultLimit <= 0 {
		errs = append(errs, "concurrency default_limit must be positive")
	}
	switch c.Availability.Backend {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown availability backend %q", c.Availability.Backend))
	}

	// 自定义端点配置了才校验 URL
	if c.Providers.Custom.BaseURL != "" {
		if err := providers.ValidateEndpoint(c.Providers.Custom.BaseURL); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AllowLists 把限制清单转成按提供商键控的映射，空清单不出现在结果里。
func (c *Config) AllowLists() map[string][]string {
	out := make(map[string][]string)
	add := func(key string, list []string) {
		if len(list) > 0 {
			out[key] = list
		}
	}
	add("gemini", c.Restrictions.Gemini)
	add("openai", c.Restrictions.OpenAI)
	add("azure", c.Restrictions.Azure)
	add("openrouter", c.Restrictions.OpenRouter)
	add("dial", c.Restrictions.DIAL)
	add("custom", c.Restrictions.Custom)
	return out
}
