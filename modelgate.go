// Package modelgate provides a top-level convenience entry point for the
// resilient model gateway.
//
// Usage:
//
//	import "github.com/BaSui01/modelgate"
//
//	gw, err := modelgate.New(modelgate.FromEnv())
//	gw, err := modelgate.New(modelgate.WithConfigFile("modelgate.yaml"))
//
//	resp, err := gw.GenerateContent(ctx, &llm.GenerateRequest{
//	    Model:  "flash",
//	    Prompt: "hello",
//	})
//
// The gateway resolves the model name or alias to a registered backend,
// bounds concurrent outbound load per backend, retries transient failures,
// and trips a circuit breaker per endpoint.
package modelgate

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/modelgate/config"
	"github.com/BaSui01/modelgate/internal/metrics"
	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/llm/factory"
)

// Gateway 是注册中心之上的薄门面。
type Gateway struct {
	*llm.AsyncRegistry

	cfg       *config.Config
	collector *metrics.Collector
	logger    *zap.Logger
}

// Option 配置 [New] 创建的网关。
type Option func(*options)

type options struct {
	configPath string
	cfg        *config.Config
	collector  *metrics.Collector
	logger     *zap.Logger
}

// FromEnv 仅从 MODELGATE_* 环境变量加载配置。
func FromEnv() Option {
	return func(o *options) { o.configPath = "" }
}

// WithConfigFile 从 YAML 文件加载配置，环境变量仍可覆盖。
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig 直接使用已构造的配置。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithCollector 注入指标收集器。
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithLogger 注入自定义 zap 日志器。
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New 创建网关。不带选项时等价于 FromEnv()。
func New(opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, err
		}
	}

	reg, err := factory.BuildRegistry(cfg, o.collector, o.logger)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		AsyncRegistry: reg,
		cfg:           cfg,
		collector:     o.collector,
		logger:        o.logger,
	}, nil
}

// Config 返回网关生效的配置。
func (g *Gateway) Config() *config.Config { return g.cfg }

// Close 关闭全部已初始化的后端连接。
func (g *Gateway) Close(ctx context.Context) error {
	return g.Shutdown(ctx)
}
