package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 10, cfg.Concurrency.DefaultLimit)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second,
	}, cfg.Retry.Delays)
	assert.Equal(t, "memory", cfg.Availability.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Breaker, cfg.Breaker)
	assert.Equal(t, DefaultConfig().Retry.MaxAttempts, cfg.Retry.MaxAttempts)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelgate.yaml")
	yaml := `
providers:
  openai:
    api_key: sk-test
  custom:
    base_url: http://localhost:8000
    model_name: local-llama
restrictions:
  openai:
    - gpt-4.1
    - mini
breaker:
  failure_threshold: 3
  recovery_timeout: 10s
concurrency:
  default_limit: 20
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "http://localhost:8000", cfg.Providers.Custom.BaseURL)
	assert.Equal(t, "local-llama", cfg.Providers.Custom.ModelName)
	assert.Equal(t, []string{"gpt-4.1", "mini"}, cfg.Restrictions.OpenAI)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 20, cfg.Concurrency.DefaultLimit)

	// Untouched sections keep defaults
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("MODELGATE_PROVIDERS_GEMINI_API_KEY", "g-key")
	t.Setenv("MODELGATE_BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("MODELGATE_RESTRICTIONS_GEMINI", "flash, gemini-2.5-pro")
	t.Setenv("MODELGATE_CONCURRENCY_DEFAULT_LIMIT", "4")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "g-key", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, 7, cfg.Breaker.FailureThreshold)
	assert.Equal(t, []string{"flash", "gemini-2.5-pro"}, cfg.Restrictions.Gemini)
	assert.Equal(t, 4, cfg.Concurrency.DefaultLimit)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  failure_threshold: 3\n"), 0o644))

	t.Setenv("MODELGATE_BREAKER_FAILURE_THRESHOLD", "9")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Breaker.FailureThreshold)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("GATEWAY_PROVIDERS_OPENAI_API_KEY", "prefixed")

	cfg, err := NewLoader().WithEnvPrefix("GATEWAY").Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Providers.OpenAI.APIKey)
}

func TestLoader_WithValidator(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			called = true
			return nil
		}).
		Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/modelgate.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Breaker, cfg.Breaker)
}

func TestLoader_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker: [not a map"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero failure threshold",
			mutate:  func(c *Config) { c.Breaker.FailureThreshold = 0 },
			wantErr: "failure_threshold",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "zero concurrency limit",
			mutate:  func(c *Config) { c.Concurrency.DefaultLimit = 0 },
			wantErr: "default_limit",
		},
		{
			name:    "unknown availability backend",
			mutate:  func(c *Config) { c.Availability.Backend = "etcd" },
			wantErr: "availability backend",
		},
		{
			name:    "custom endpoint without scheme",
			mutate:  func(c *Config) { c.Providers.Custom.BaseURL = "localhost:8000" },
			wantErr: "scheme",
		},
		{
			name:    "custom endpoint bad port",
			mutate:  func(c *Config) { c.Providers.Custom.BaseURL = "http://localhost:99999" },
			wantErr: "port",
		},
		{
			name:   "custom endpoint valid",
			mutate: func(c *Config) { c.Providers.Custom.BaseURL = "https://llm.internal:8443/v1" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// AllowLists
// ---------------------------------------------------------------------------

func TestConfig_AllowLists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Restrictions.OpenAI = []string{"gpt-4.1"}
	cfg.Restrictions.Custom = []string{"local-llama", "default"}

	lists := cfg.AllowLists()
	assert.Len(t, lists, 2)
	assert.Equal(t, []string{"gpt-4.1"}, lists["openai"])
	assert.Equal(t, []string{"local-llama", "default"}, lists["custom"])
	_, ok := lists["gemini"]
	assert.False(t, ok, "empty lists must not appear")
}

// ---------------------------------------------------------------------------
// MustLoad
// ---------------------------------------------------------------------------

func TestMustLoad_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg := MustLoad(path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMustLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	// 未闭合的流式序列，yaml 解析必然报错
	require.NoError(t, os.WriteFile(path, []byte("log: [debug"), 0o644))

	assert.Panics(t, func() { MustLoad(path) })
}
