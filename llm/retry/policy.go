package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy 定义重试策略。
// 采用固定延迟查表而不是计算出的指数曲线：
// 生成类调用耗时以秒计，精心挑选的四档延迟比通用退避更可预测。
type Policy struct {
	// MaxAttempts 总尝试次数（含首次），默认 4
	MaxAttempts int

	// Delays 两次尝试之间的延迟查找表，默认 [1s, 3s, 5s, 8s]
	Delays []time.Duration

	// IsRetryable 后端特定的错误分类器，nil 时使用 DefaultClassifier
	IsRetryable func(err error) bool

	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认策略。
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 4,
		Delays:      []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second},
	}
}

// ExhaustedError 重试耗尽后的包装错误，携带尝试次数与最终原因。
// 中间尝试的错误被吞掉，只有最后一次的错误会浮出。
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时按策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时按策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// scheduleRetryer 基于固定延迟表的重试器实现
type scheduleRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// New 创建固定延迟表重试器。
func New(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 4
	}
	if len(policy.Delays) == 0 {
		policy.Delays = DefaultPolicy().Delays
	}

	return &scheduleRetryer{
		policy: policy,
		logger: logger,
	}
}

// Do 实现 Retryer.Do
func (r *scheduleRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
func (r *scheduleRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	classify := r.policy.IsRetryable
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 最后一次尝试或不可重试：停止并包装
		if attempt == r.policy.MaxAttempts || !classify(err) {
			if attempt < r.policy.MaxAttempts {
				r.logger.Debug("错误不可重试", zap.Error(err))
			} else {
				r.logger.Warn("重试次数耗尽",
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
			}
			return nil, &ExhaustedError{Attempts: attempt, Cause: err}
		}

		delay := r.delayFor(attempt)
		r.logger.Debug("重试中",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, &ExhaustedError{Attempts: attempt, Cause: ctx.Err()}
		case <-time.After(delay):
		}
	}

	// 不可达，循环内必定返回
	return nil, &ExhaustedError{Attempts: r.policy.MaxAttempts, Cause: lastErr}
}

// delayFor 返回第 attempt 次失败后的延迟（attempt 从 1 开始）。
// 表不够长时沿用最后一档。
func (r *scheduleRetryer) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(r.policy.Delays) {
		idx = len(r.policy.Delays) - 1
	}
	return r.policy.Delays[idx]
}
