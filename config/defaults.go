// =============================================================================
// 📦 ModelGate 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Concurrency:  DefaultConcurrencyConfig(),
		Breaker:      DefaultBreakerConfig(),
		Retry:        DefaultRetryConfig(),
		Availability: DefaultAvailabilityConfig(),
		Redis:        DefaultRedisConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultConcurrencyConfig 返回默认并发门配置
func DefaultConcurrencyConfig() ConcurrencyConfig {
	return ConcurrencyConfig{
		DefaultLimit: 10,
	}
}

// DefaultBreakerConfig 返回默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		Delays: []time.Duration{
			1 * time.Second,
			3 * time.Second,
			5 * time.Second,
			8 * time.Second,
		},
	}
}

// DefaultAvailabilityConfig 返回默认可用性缓存配置
func DefaultAvailabilityConfig() AvailabilityConfig {
	return AvailabilityConfig{
		Backend: "memory",
		TTL:     5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:     false,
		ServiceName: "modelgate",
	}
}
