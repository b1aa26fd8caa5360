package idgen

import (
	"context"
	"strconv"
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	now       func() time.Time
	tolerance time.Duration
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

// WithLogger 设置 Logger，自动追加 "idgen" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("idgen")
		}
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithClockTolerance 允许等待不超过 d 的时钟回拨，默认 0：任何回拨都直接失败
func WithClockTolerance(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tolerance = d
		}
	}
}

// instruments 生成器共用的指标，由 Registry 创建一次后分发给每个实例
type instruments struct {
	generated metrics.Counter
	backwards metrics.Counter
	resolves  metrics.Counter
}

func newInstruments(meter metrics.Meter, logger clog.Logger) *instruments {
	counter := func(name, desc string) metrics.Counter {
		c, err := meter.Counter(name, desc)
		if err != nil {
			logger.Warn("create counter failed", clog.String("metric", name), clog.Error(err))
			c, _ = metrics.Discard().Counter(name, desc)
		}
		return c
	}
	return &instruments{
		generated: counter(MetricGenerated, "Snowflake IDs generated"),
		backwards: counter(MetricClockBackwards, "ID generation failures caused by clock rollback"),
		resolves:  counter(MetricResolves, "Module identity resolutions by source"),
	}
}

func (i *instruments) recordGenerated(ctx context.Context, id Identity) {
	i.generated.Inc(ctx,
		metrics.L(LabelWorker, strconv.FormatInt(id.WorkerID, 10)),
		metrics.L(LabelDatacenter, strconv.FormatInt(id.DatacenterID, 10)),
	)
}
