package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 生成调用指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec

	// 熔断器指标
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec

	// 并发门指标
	gateInFlight *prometheus.GaugeVec
	gateWaits    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。
// reg 为 nil 时注册到默认 Registry；测试传入独立 Registry 避免重复注册。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "model"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"endpoint", "from", "to"},
	)

	c.breakerRejections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_rejections_total",
			Help:      "Requests rejected while the circuit was open",
		},
		[]string{"endpoint"},
	)

	c.gateInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_in_flight",
			Help:      "Concurrent in-flight requests per backend type",
		},
		[]string{"backend"},
	)

	c.gateWaits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_acquisitions_total",
			Help:      "Total gate permit acquisitions",
		},
		[]string{"backend"},
	)

	return c
}

// RecordRequest 记录一次生成调用。
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens 记录 token 消耗。
func (c *Collector) RecordTokens(provider, model string, input, output int) {
	c.tokensUsed.WithLabelValues(provider, model, "input").Add(float64(input))
	c.tokensUsed.WithLabelValues(provider, model, "output").Add(float64(output))
}

// RecordBreakerTransition 记录熔断器状态变更。
func (c *Collector) RecordBreakerTransition(endpoint, from, to string) {
	c.breakerTransitions.WithLabelValues(endpoint, from, to).Inc()
}

// RecordBreakerRejection 记录熔断拒绝。
func (c *Collector) RecordBreakerRejection(endpoint string) {
	c.breakerRejections.WithLabelValues(endpoint).Inc()
}

// GateAcquired 记录一次并发门获取。
func (c *Collector) GateAcquired(backend string) {
	c.gateWaits.WithLabelValues(backend).Inc()
	c.gateInFlight.WithLabelValues(backend).Inc()
}

// GateReleased 记录一次并发门释放。
func (c *Collector) GateReleased(backend string) {
	c.gateInFlight.WithLabelValues(backend).Dec()
}
