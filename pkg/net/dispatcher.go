package net

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen 熔断器处于打开状态，请求未发出
var ErrCircuitOpen = errors.New("circuit breaker is open")

// GuardConfig 限流与熔断参数
type GuardConfig struct {
	RatePerSecond   float64 // <= 0 表示不限流
	Burst           int
	BreakerFailures uint32        // 连续失败多少次后熔断，0 表示不启用
	BreakerTimeout  time.Duration // 熔断后多久进入半开

	// IsFailure 判断错误是否计入熔断统计，为空时所有错误都计入
	IsFailure func(err error) bool
}

// Dispatcher 按业务键（店铺域名）调度出站请求
// 同一个键的请求共享一个令牌桶和一个熔断器
type Dispatcher interface {
	Do(ctx context.Context, key string, fn func() error) error
}

type keyedDispatcher struct {
	cfg      GuardConfig
	limiters sync.Map // key -> *rate.Limiter
	breakers sync.Map // key -> *gobreaker.CircuitBreaker
}

var _ Dispatcher = (*keyedDispatcher)(nil)

func NewDispatcher(cfg GuardConfig) Dispatcher {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &keyedDispatcher{cfg: cfg}
}

// Do 先等令牌，再经熔断器执行 fn，不做任何重试
func (d *keyedDispatcher) Do(ctx context.Context, key string, fn func() error) error {
	if err := d.limiter(key).Wait(ctx); err != nil {
		return fmt.Errorf("等待限流令牌失败: %w", err)
	}

	cb := d.breaker(key)
	if cb == nil {
		return fn()
	}

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, key)
	}
	return err
}

func (d *keyedDispatcher) limiter(key string) *rate.Limiter {
	if val, ok := d.limiters.Load(key); ok {
		return val.(*rate.Limiter)
	}

	limit := rate.Inf
	if d.cfg.RatePerSecond > 0 {
		limit = rate.Limit(d.cfg.RatePerSecond)
	}
	// LoadOrStore 防止并发重复创建
	actual, _ := d.limiters.LoadOrStore(key, rate.NewLimiter(limit, d.cfg.Burst))
	return actual.(*rate.Limiter)
}

func (d *keyedDispatcher) breaker(key string) *gobreaker.CircuitBreaker {
	if d.cfg.BreakerFailures == 0 {
		return nil
	}
	if val, ok := d.breakers.Load(key); ok {
		return val.(*gobreaker.CircuitBreaker)
	}

	threshold := d.cfg.BreakerFailures
	isFailure := d.cfg.IsFailure
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if isFailure == nil {
				return false
			}
			return !isFailure(err)
		},
	})

	actual, _ := d.breakers.LoadOrStore(key, cb)
	return actual.(*gobreaker.CircuitBreaker)
}
