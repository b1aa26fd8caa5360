// Package ratelimit 提供按作用域隔离的令牌桶限流，支持单机和分布式两种模式。
//
// Registry 是进程内唯一的限流入口，持有三个互不相干的键空间：用户、API 路径、客户端 IP。
// 每个 key 在第一次使用时以当时的 qps 创建令牌桶，之后 qps 固定不变，
// 直到 ClearLimiters 清空全部令牌桶。
//
// 桶容量为一秒的令牌数（至少为 1），令牌按经过的时间连续补充。
// TryAcquire 从不阻塞，也不排队。
//
// ## 单机模式
//
//	limiter := ratelimit.NewStandalone(nil, ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
//	if !limiter.TryAcquireForUser(ctx, userID, 10) {
//	    return errTooManyRequests
//	}
//
// ## 分布式模式
//
//	redisConn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	defer redisConn.Close()
//
//	limiter, _ := ratelimit.NewDistributed(redisConn, &ratelimit.DistributedConfig{
//	    Prefix: "order-service:ratelimit:",
//	}, ratelimit.WithLogger(logger))
//
// 分布式模式下令牌桶保存在 Redis 中，由 Lua 脚本原子地补充与扣减，集群内共享。
// Redis 出错时放行请求并记录错误。
//
// ## 定时重置
//
//	c, _ := ratelimit.NewResetScheduler(limiter, "@daily", logger)
//	c.Start()
//	defer c.Stop()
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// ========================================
// 作用域 (Scopes)
// ========================================

// Scope 限流键空间
type Scope string

const (
	// ScopeUser 按用户 ID 限流
	ScopeUser Scope = "user"
	// ScopeAPI 按 API 路径限流
	ScopeAPI Scope = "api"
	// ScopeIP 按客户端 IP 限流
	ScopeIP Scope = "ip"
)

// Scopes 返回全部作用域
func Scopes() []Scope {
	return []Scope{ScopeUser, ScopeAPI, ScopeIP}
}

func (s Scope) valid() bool {
	switch s {
	case ScopeUser, ScopeAPI, ScopeIP:
		return true
	}
	return false
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// DefaultBurstWindow 桶容量对应的时间窗口
const DefaultBurstWindow = time.Second

// StandaloneConfig 单机限流配置
type StandaloneConfig struct {
	// BurstWindow 桶容量为该窗口内的令牌数（默认：1s）
	BurstWindow time.Duration `json:"burst_window" yaml:"burst_window" mapstructure:"burst_window"`
}

func (c *StandaloneConfig) setDefaults() {
	if c.BurstWindow <= 0 {
		c.BurstWindow = DefaultBurstWindow
	}
}

// DistributedConfig 分布式限流配置
type DistributedConfig struct {
	// Prefix Redis Key 前缀（默认："bastion:ratelimit:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// BurstWindow 桶容量为该窗口内的令牌数（默认：1s）
	BurstWindow time.Duration `json:"burst_window" yaml:"burst_window" mapstructure:"burst_window"`

	// IdleTTL 令牌桶空闲多久后由 Redis 过期删除，0 表示永不过期
	IdleTTL time.Duration `json:"idle_ttl" yaml:"idle_ttl" mapstructure:"idle_ttl"`
}

func (c *DistributedConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "bastion:ratelimit:"
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = DefaultBurstWindow
	}
}

// burstFor 窗口内的令牌数，向上取整且至少为 1
func burstFor(qps float64, window time.Duration) int {
	burst := int(math.Ceil(qps * window.Seconds()))
	if burst < 1 {
		return 1
	}
	return burst
}

// ========================================
// Registry
// ========================================

// backend 令牌桶存储
type backend interface {
	allow(ctx context.Context, scope Scope, key string, qps float64, now time.Time) (bool, error)
	clear(ctx context.Context) error
	size(scope Scope) int
}

// Registry 进程内限流器注册表，可被任意 goroutine 并发使用
type Registry struct {
	backend backend
	mode    string
	logger  clog.Logger
	now     func() time.Time

	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
	resets  metrics.Counter
}

func newRegistry(b backend, mode string, o *options) *Registry {
	r := &Registry{
		backend: b,
		mode:    mode,
		logger:  o.logger.With(clog.String(LabelMode, mode)),
		now:     o.now,
	}

	// 指标创建失败时退化为空操作，不影响限流本身
	noop := metrics.Discard()
	r.allowed = counterOr(o.meter, noop, MetricAllowed, "Requests admitted by rate limiter", r.logger)
	r.denied = counterOr(o.meter, noop, MetricDenied, "Requests denied by rate limiter", r.logger)
	r.errors = counterOr(o.meter, noop, MetricErrors, "Rate limiter backend errors (request admitted)", r.logger)
	r.resets = counterOr(o.meter, noop, MetricResets, "Rate limiter resets", r.logger)
	return r
}

func counterOr(meter, fallback metrics.Meter, name, desc string, logger clog.Logger) metrics.Counter {
	c, err := meter.Counter(name, desc)
	if err != nil {
		logger.Warn("create counter failed", clog.String("metric", name), clog.Error(err))
		c, _ = fallback.Counter(name, desc)
	}
	return c
}

// TryAcquire 尝试从 scope 下 key 对应的令牌桶取一个令牌，立即返回
//
// 令牌桶不存在时以 qps 创建；已存在时沿用创建时的 qps。
// key 为空或 qps 不为正数时直接放行。后端出错时放行。
func (r *Registry) TryAcquire(ctx context.Context, scope Scope, key string, qps float64) bool {
	if key == "" || qps <= 0 {
		return true
	}
	if !scope.valid() {
		r.logger.ErrorContext(ctx, "rate limit check skipped", clog.String("scope", string(scope)), clog.Error(ErrUnknownScope))
		r.errors.Inc(ctx, metrics.L(LabelMode, r.mode))
		return true
	}

	allowed, err := r.backend.allow(ctx, scope, key, qps, r.now())
	if err != nil {
		r.logger.ErrorContext(ctx, "rate limit backend failed, request admitted",
			clog.String("scope", string(scope)),
			clog.String("key", key),
			clog.Error(err))
		r.errors.Inc(ctx, metrics.L(LabelMode, r.mode))
		return true
	}

	labels := []metrics.Label{metrics.L(LabelScope, string(scope)), metrics.L(LabelMode, r.mode)}
	if allowed {
		r.allowed.Inc(ctx, labels...)
	} else {
		r.denied.Inc(ctx, labels...)
		r.logger.DebugContext(ctx, "rate limited",
			clog.String("scope", string(scope)),
			clog.String("key", key),
			clog.Float64("qps", qps))
	}
	return allowed
}

// TryAcquireForUser 按用户限流
func (r *Registry) TryAcquireForUser(ctx context.Context, userID string, qps float64) bool {
	return r.TryAcquire(ctx, ScopeUser, userID, qps)
}

// TryAcquireForAPI 按 API 路径限流
func (r *Registry) TryAcquireForAPI(ctx context.Context, apiPath string, qps float64) bool {
	return r.TryAcquire(ctx, ScopeAPI, apiPath, qps)
}

// TryAcquireForIP 按客户端 IP 限流
func (r *Registry) TryAcquireForIP(ctx context.Context, ip string, qps float64) bool {
	return r.TryAcquire(ctx, ScopeIP, ip, qps)
}

// ClearLimiters 丢弃三个作用域内的全部令牌桶
//
// 之后任意 key 的下一次调用都会得到一个按新 qps 创建的满桶。
// 与之并发的 TryAcquire 可能仍在旧桶上完成本次判断。
func (r *Registry) ClearLimiters(ctx context.Context) error {
	if err := r.backend.clear(ctx); err != nil {
		r.logger.ErrorContext(ctx, "clear limiters failed", clog.Error(err))
		return err
	}
	r.resets.Inc(ctx, metrics.L(LabelMode, r.mode))
	r.logger.InfoContext(ctx, "all limiters cleared")
	return nil
}

// Len 返回 scope 下当前缓存的令牌桶数量，分布式模式返回 -1
func (r *Registry) Len(scope Scope) int {
	return r.backend.size(scope)
}

// Mode 返回 "standalone" 或 "distributed"
func (r *Registry) Mode() string {
	return r.mode
}
