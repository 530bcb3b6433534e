package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Classifier 判断错误是否计入熔断失败。
// 返回 false 的错误（如格式良好的 4xx 客户端错误）原样透传，
// 不触碰计数器与状态。
type Classifier func(err error) bool

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续计数失败次数阈值（触发熔断）
	FailureThreshold int

	// RecoveryTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的最大探测请求数
	HalfOpenMaxCalls int

	// Classifier 错误分类器，nil 表示所有错误都计入失败
	Classifier Classifier

	// OnStateChange 状态变更回调
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Metrics 熔断器累计指标，除手动 Reset 外只增不减。
type Metrics struct {
	FailureCount     int64 `json:"failure_count"`
	SuccessCount     int64 `json:"success_count"`
	TotalRequests    int64 `json:"total_requests"`
	RejectedRequests int64 `json:"rejected_requests"`
	StateTransitions int64 `json:"state_transitions"`
}

// OpenError 是熔断打开时返回的区分错误，
// 携带端点与失败上下文供上层决策（例如切换到其他后端）。
type OpenError struct {
	Endpoint        string
	FailureCount    int
	LastFailureTime time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s: %d consecutive failures, last at %s",
		e.Endpoint, e.FailureCount, e.LastFailureTime.Format(time.RFC3339))
}

// ErrTooManyHalfOpenCalls 半开状态下探测请求数超限。
type ErrTooManyHalfOpenCalls struct {
	Endpoint string
}

func (e *ErrTooManyHalfOpenCalls) Error() string {
	return fmt.Sprintf("circuit half-open for %s: probe limit reached", e.Endpoint)
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，如果熔断器打开则返回 *OpenError
	Call(ctx context.Context, fn func() error) error

	// CallWithResult 执行调用并返回结果
	CallWithResult(ctx context.Context, fn func() (any, error)) (any, error)

	// State 获取当前状态
	State() State

	// Metrics 获取累计指标快照
	Metrics() Metrics

	// Reset 重置熔断器（手动恢复），同时清零累计指标
	Reset()
}

// breaker 熔断器实现。每个 (provider, endpoint) 一个实例，
// 在提供商构造时创建，进程生命周期内存活。
type breaker struct {
	config   *Config
	endpoint string
	logger   *zap.Logger

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续计数失败次数
	lastFailureTime   time.Time // 最后失败时间
	halfOpenCallCount int       // 半开状态下的调用次数
	metrics           Metrics
}

// New 为一个端点创建熔断器。
func New(endpoint string, config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}

	return &breaker{
		config:   config,
		endpoint: endpoint,
		logger:   logger.With(zap.String("endpoint", endpoint)),
		state:    StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func() error) error {
	_, err := b.CallWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// CallWithResult 实现 CircuitBreaker.CallWithResult
// 状态检查在锁内序列化，被包裹的操作在锁外执行，
// 慢调用不会阻塞无关的状态簿记。
func (b *breaker) CallWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	result, err := fn()

	if err != nil {
		// 分类器决定错误是否计入熔断失败；
		// 不计入的错误原样透传，不触碰计数器与状态。
		if b.config.Classifier != nil && !b.config.Classifier(err) {
			return nil, err
		}
		b.afterCall(false)
		return nil, err
	}

	b.afterCall(true)
	return result, nil
}

// beforeCall 调用前检查
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		// 检查是否可以进入半开状态
		if time.Since(b.lastFailureTime) > b.config.RecoveryTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 1
			b.logger.Info("熔断器进入半开状态")
			return nil
		}

		// 仍在熔断中
		b.metrics.RejectedRequests++
		return &OpenError{
			Endpoint:        b.endpoint,
			FailureCount:    b.failureCount,
			LastFailureTime: b.lastFailureTime,
		}

	case StateHalfOpen:
		// 半开状态，限制探测次数
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			b.metrics.RejectedRequests++
			return &ErrTooManyHalfOpenCalls{Endpoint: b.endpoint}
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", b.state)
	}
}

// afterCall 调用后处理
func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// onSuccess 处理成功调用
func (b *breaker) onSuccess() {
	b.metrics.SuccessCount++

	switch b.state {
	case StateClosed:
		// 关闭状态，重置连续失败计数
		b.failureCount = 0

	case StateHalfOpen:
		// 半开状态，任一成功即恢复到关闭状态
		b.logger.Info("熔断器恢复正常",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0

	case StateOpen:
		// 打开状态不应该有调用
		b.logger.Warn("熔断器打开状态收到成功响应")
	}
}

// onFailure 处理计数失败
func (b *breaker) onFailure() {
	b.metrics.FailureCount++
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.FailureThreshold),
			)
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		// 半开状态，任一失败即重新打开
		b.logger.Warn("熔断器半开状态失败，重新打开",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateOpen)
		b.halfOpenCallCount = 0

	case StateOpen:
		b.logger.Warn("熔断器打开状态收到失败响应")
	}
}

// setState 设置状态并触发回调（调用方必须持有锁）
func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState
	b.metrics.StateTransitions++

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics 实现 CircuitBreaker.Metrics
func (b *breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.metrics = Metrics{}

	b.logger.Info("熔断器已重置",
		zap.String("from_state", oldState.String()),
	)

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}
