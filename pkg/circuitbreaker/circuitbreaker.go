package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/metrics"
)

// Config 熔断参数
type Config struct {
	MaxRequests         uint32        // 半开状态允许的试探请求数
	Interval            time.Duration // 关闭状态下统计窗口,0表示不重置
	Timeout             time.Duration // 打开状态持续多久后进入半开
	ConsecutiveFailures uint32        // 连续失败多少次后熔断
}

// DefaultConfig 默认: 连续失败5次熔断,30秒后半开
func DefaultConfig() Config {
	return Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker 包装gobreaker,状态变化同步到Prometheus
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New 创建熔断器
func New(name string, cfg Config) *Breaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	b := &Breaker{name: name}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return b
}

// Execute 执行请求;熔断打开时不调用fn,直接返回ErrUnavailable
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeUnavailable,
			Message: apperrors.ErrUnavailable.Message,
			Err:     err,
		}
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return nil
	}
}

// State 当前状态: closed/open/half-open
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
