package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/bastion/clog"
)

// standaloneLimiter 单机令牌桶，每个作用域一个 sync.Map
type standaloneLimiter struct {
	cfg    StandaloneConfig
	scopes map[Scope]*sync.Map // key -> *rate.Limiter
}

// NewStandalone 创建单机限流器，cfg 为 nil 时使用默认配置
func NewStandalone(cfg *StandaloneConfig, opts ...Option) *Registry {
	c := StandaloneConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	l := &standaloneLimiter{
		cfg:    c,
		scopes: make(map[Scope]*sync.Map, 3),
	}
	for _, s := range Scopes() {
		l.scopes[s] = &sync.Map{}
	}

	o := applyOptions(opts)
	r := newRegistry(l, modeStandalone, o)
	r.logger.Info("standalone rate limiter created", clog.Duration("burst_window", c.BurstWindow))
	return r
}

func (l *standaloneLimiter) allow(_ context.Context, scope Scope, key string, qps float64, now time.Time) (bool, error) {
	return l.getLimiter(scope, key, qps).AllowN(now, 1), nil
}

// getLimiter 获取或创建 key 对应的令牌桶，并发首次访问只保留一个实例
func (l *standaloneLimiter) getLimiter(scope Scope, key string, qps float64) *rate.Limiter {
	m := l.scopes[scope]
	if v, ok := m.Load(key); ok {
		return v.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(qps), burstFor(qps, l.cfg.BurstWindow))
	actual, _ := m.LoadOrStore(key, limiter)
	return actual.(*rate.Limiter)
}

func (l *standaloneLimiter) clear(context.Context) error {
	for _, m := range l.scopes {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}
	return nil
}

func (l *standaloneLimiter) size(scope Scope) int {
	m, ok := l.scopes[scope]
	if !ok {
		return 0
	}
	n := 0
	m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
