// Package guard 将熔断器与三级限流组合为入站请求的准入控制。
//
// 检查顺序固定：排除路径 → 按 API 路径熔断 → 用户限流 → API 限流 → IP 限流。
// 熔断拒绝返回 503，限流拒绝返回 429；通过后根据处理结果回写熔断器：
// 耗时超过熔断器 Timeout 记为超时，5xx 或处理错误记为失败，其余记为成功。
//
//	limiter := ratelimit.NewStandalone(nil, ratelimit.WithLogger(logger))
//	g, err := guard.New(guard.DefaultConfig(), limiter, guard.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
//	r := gin.New()
//	r.Use(guard.RequestID(), g.Gin())
package guard

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ceyewan/bastion/breaker"
	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
	"github.com/ceyewan/bastion/ratelimit"
	"github.com/ceyewan/bastion/xerrors"
)

// Guard 入站请求准入控制，可被任意 goroutine 并发使用
type Guard struct {
	limiter  *ratelimit.Registry
	opts     *options
	logger   clog.Logger
	rejected metrics.Counter

	state atomic.Pointer[state]

	mu        sync.Mutex // 串行化 Reload 与 Close
	scheduler *cron.Cron
}

// state 一份配置及由它派生的只读数据，Reload 时整体替换
type state struct {
	cfg      Config
	exclude  pathMatcher
	breakers *breaker.Group // 未启用熔断时为 nil
}

// request 一次入站请求的准入维度
type request struct {
	path   string
	userID string
	ip     string
}

// New 创建准入控制；cfg.ResetCron 非空时立即启动定时重置
func New(cfg Config, limiter *ratelimit.Registry, opts ...Option) (*Guard, error) {
	if limiter == nil {
		return nil, ErrLimiterNil
	}

	o := applyOptions(opts)
	g := &Guard{limiter: limiter, opts: o, logger: o.logger}

	rejected, err := o.meter.Counter(MetricRejected, "Requests rejected by guard")
	if err != nil {
		g.logger.Warn("create counter failed", clog.String("metric", MetricRejected), clog.Error(err))
		rejected, _ = metrics.Discard().Counter(MetricRejected, "")
	}
	g.rejected = rejected

	st, err := g.build(cfg, nil)
	if err != nil {
		return nil, err
	}
	if err := g.schedule(st.cfg.ResetCron); err != nil {
		return nil, err
	}
	g.state.Store(st)

	g.logger.Info("guard initialized",
		clog.Bool("enabled", st.cfg.Enabled),
		clog.Bool("breaker", st.breakers != nil),
		clog.String("limiter_mode", limiter.Mode()))
	return g, nil
}

// build 校验配置并派生 state；熔断配置未变化时沿用 prev 的熔断器组，保留其状态
func (g *Guard) build(cfg Config, prev *state) (*state, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	st := &state{cfg: cfg, exclude: newPathMatcher(cfg.ExcludePaths)}
	if !cfg.Breaker.Enabled {
		return st, nil
	}
	if prev != nil && prev.breakers != nil && reflect.DeepEqual(prev.cfg.Breaker, cfg.Breaker) {
		st.breakers = prev.breakers
		return st, nil
	}

	group, err := breaker.NewGroup(cfg.Breaker.group(),
		breaker.WithLogger(g.logger),
		breaker.WithMeter(g.opts.meter),
		breaker.WithClock(g.opts.now),
	)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "breaker: %v", err)
	}
	st.breakers = group
	return st, nil
}

// schedule 用新的 cron 表达式替换定时重置，调用方持有 mu 或处于初始化阶段
func (g *Guard) schedule(spec string) error {
	var next *cron.Cron
	if spec != "" {
		c, err := ratelimit.NewResetScheduler(g.limiter, spec, g.logger)
		if err != nil {
			return err
		}
		next = c
	}

	if g.scheduler != nil {
		g.scheduler.Stop()
	}
	g.scheduler = next
	if next != nil {
		next.Start()
	}
	return nil
}

// Config 返回当前生效的配置（已填充默认值）
func (g *Guard) Config() Config {
	return g.state.Load().cfg
}

// Breakers 返回按路径创建的熔断器组，未启用熔断时返回 nil
func (g *Guard) Breakers() *breaker.Group {
	return g.state.Load().breakers
}

// Reload 原子替换配置
//
// 任一作用域的 QPS 变化时清空全部令牌桶，新阈值在下一次请求时生效；
// 熔断配置变化时重建熔断器组。校验失败时保留原配置。
func (g *Guard) Reload(ctx context.Context, cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.state.Load()
	st, err := g.build(cfg, prev)
	if err != nil {
		return err
	}
	if st.cfg.ResetCron != prev.cfg.ResetCron {
		if err := g.schedule(st.cfg.ResetCron); err != nil {
			return err
		}
	}
	g.state.Store(st)

	if prev.cfg.qpsChanged(st.cfg) {
		if err := g.limiter.ClearLimiters(ctx); err != nil {
			return xerrors.Wrap(err, "clear limiters after reload")
		}
	}

	g.logger.InfoContext(ctx, "guard config reloaded",
		clog.Bool("enabled", st.cfg.Enabled),
		clog.Float64("user_qps", st.cfg.UserQPS),
		clog.Float64("api_qps", st.cfg.APIQPS),
		clog.Float64("ip_qps", st.cfg.IPQPS),
		clog.Bool("breaker", st.breakers != nil))
	return nil
}

// Close 停止定时重置并等待正在执行的重置结束
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.scheduler != nil {
		<-g.scheduler.Stop().Done()
		g.scheduler = nil
	}
	return nil
}

// skip 排除路径或未启用时不做任何检查
func (st *state) skip(path string) bool {
	return st.exclude.match(path) || !st.cfg.Enabled
}

// admit 依次执行熔断与三级限流，reason 为空表示放行
//
// 半开状态的探测名额在通过全部限流后才占用，被限流的请求不会耗尽名额。
func (g *Guard) admit(ctx context.Context, st *state, req request) (cb *breaker.CircuitBreaker, reason string) {
	if st.breakers != nil {
		cb = st.breakers.Get(req.path)
		if !cb.AllowRequest() {
			return nil, reasonBreaker
		}
	}

	cfg := st.cfg
	if !g.limiter.TryAcquireForUser(ctx, req.userID, cfg.UserQPS) {
		return nil, string(ratelimit.ScopeUser)
	}
	if !g.limiter.TryAcquireForAPI(ctx, req.path, cfg.APIQPS) {
		return nil, string(ratelimit.ScopeAPI)
	}
	if !g.limiter.TryAcquireForIP(ctx, req.ip, cfg.IPQPS) {
		return nil, string(ratelimit.ScopeIP)
	}

	if cb != nil && cb.State() == breaker.StateHalfOpen {
		cb.IncrementHalfOpenRequest()
	}
	return cb, ""
}

// finish 将处理结果回写熔断器
func (g *Guard) finish(cb *breaker.CircuitBreaker, start time.Time, failed bool) {
	if cb == nil {
		return
	}
	switch {
	case g.opts.now().Sub(start) > cb.Timeout():
		cb.RecordTimeout()
	case failed:
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}
}

func (g *Guard) reject(ctx context.Context, transport, reason string, req request) {
	g.rejected.Inc(ctx, metrics.L(LabelReason, reason), metrics.L(LabelTransport, transport))
	g.logger.WarnContext(ctx, "request rejected",
		clog.String("reason", reason),
		clog.String("path", req.path),
		clog.String("user_id", req.userID),
		clog.String("ip", req.ip))
}
