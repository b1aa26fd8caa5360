package breaker

import (
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// Option 熔断器选项
type Option func(*options)

// StateChangeHook 状态变更回调，在锁外同步调用
type StateChangeHook func(name string, from, to State)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	now    func() time.Time
	hooks  []StateChangeHook
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 设置 Logger，自动追加 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock 替换时间源，测试中用于推进 OpenDuration
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStateChangeHook 注册状态变更回调，可多次调用
func WithStateChangeHook(hook StateChangeHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}
