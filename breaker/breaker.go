// Package breaker 提供按资源隔离的熔断器。
//
// 每个受保护资源（下游依赖、API 路径）对应一个 CircuitBreaker，进程内长期存在，
// 被所有调用该资源的 goroutine 并发使用。熔断器只给出建议：
// AllowRequest 返回布尔值，拒绝不是错误；重试策略由调用方决定。
//
// 状态机：
//
//	CLOSED --错误率达到阈值--> OPEN --OpenDuration 到期--> HALF_OPEN
//	HALF_OPEN --一次成功--> CLOSED（计数清零）
//	HALF_OPEN --一次失败--> OPEN（重新计时，计数清零）
//
// 错误率使用自上次清零以来的累计计数，不是滑动窗口：长时间健康之后的一波错误会被
// 之前的成功稀释，这是有意保留的粗粒度行为。
//
// 基本使用：
//
//	cb, _ := breaker.New(&breaker.Config{Name: "inventory"}, breaker.WithLogger(logger))
//	if !cb.AllowRequest() {
//	    return errServiceBusy
//	}
//	if cb.State() == breaker.StateHalfOpen {
//	    cb.IncrementHalfOpenRequest()
//	}
//	if err := callInventory(ctx); err != nil {
//	    cb.RecordFailure()
//	    return err
//	}
//	cb.RecordSuccess()
//
// 或者直接使用 Execute 完成上述流程。
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// State 熔断器状态
type State int32

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts 计数快照
type Counts struct {
	TotalRequests    int64
	ErrorRequests    int64
	HalfOpenRequests int32
}

// CircuitBreaker 单个资源的熔断器
//
// state 与计数器均为原子变量，读路径不加锁；状态迁移在 mu 保护下进行，
// 并在锁内再次确认迁移前的状态，保证并发竞争时只有一个 goroutine 完成迁移。
type CircuitBreaker struct {
	cfg Config

	state        atomic.Int32
	total        atomic.Int64
	errors       atomic.Int64
	halfOpen     atomic.Int32
	lastOpenTime atomic.Int64 // UnixNano

	mu sync.Mutex

	now     func() time.Time
	logger  clog.Logger
	hooks   []StateChangeHook
	changes metrics.Counter
	rejects metrics.Counter
	calls   metrics.Counter
}

// New 创建熔断器，cfg 中的零值字段使用默认值
func New(cfg *Config, opts ...Option) (*CircuitBreaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)

	changes, err := o.meter.Counter(MetricStateChanges, "Circuit breaker state transitions")
	if err != nil {
		return nil, err
	}
	rejects, err := o.meter.Counter(MetricRejectsTotal, "Requests rejected by circuit breaker")
	if err != nil {
		return nil, err
	}
	calls, err := o.meter.Counter(MetricCallsTotal, "Calls executed under circuit breaker protection")
	if err != nil {
		return nil, err
	}

	cb := &CircuitBreaker{
		cfg:     c,
		now:     o.now,
		logger:  o.logger.With(clog.String("name", c.Name)),
		hooks:   o.hooks,
		changes: changes,
		rejects: rejects,
		calls:   calls,
	}
	cb.state.Store(int32(StateClosed))
	return cb, nil
}

// AllowRequest 判断是否放行本次调用，不阻塞
//
// 除 OPEN 到期后迁移到 HALF_OPEN 外没有其他副作用。完成迁移的调用方获得第一个探测名额，
// 并应随后调用 IncrementHalfOpenRequest。
func (cb *CircuitBreaker) AllowRequest() bool {
	allowed := cb.allow()
	if !allowed {
		cb.rejects.Inc(context.Background(), metrics.L(LabelName, cb.cfg.Name))
	}
	return allowed
}

func (cb *CircuitBreaker) allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpen.Load() < int32(cb.cfg.HalfOpenRequests)
	}

	if !cb.openExpired() {
		return false
	}

	if cb.transition(StateOpen, StateHalfOpen, cb.openExpired, func() {
		cb.halfOpen.Store(0)
	}) {
		return true
	}

	// 迁移被其他 goroutine 抢先完成，按当前状态重新判断
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpen.Load() < int32(cb.cfg.HalfOpenRequests)
	default:
		return false
	}
}

func (cb *CircuitBreaker) openExpired() bool {
	elapsed := cb.now().UnixNano() - cb.lastOpenTime.Load()
	return elapsed >= int64(cb.cfg.OpenDuration)
}

// RecordSuccess 记录一次成功
//
// HALF_OPEN 下迁移到 CLOSED 并清零所有计数；其他状态只累加总数，
// 成功不会抵消已记录的错误。
func (cb *CircuitBreaker) RecordSuccess() {
	if cb.State() == StateHalfOpen {
		if cb.transition(StateHalfOpen, StateClosed, nil, cb.resetCounts) {
			return
		}
	}
	cb.total.Add(1)
}

// RecordFailure 记录一次失败
//
// 总数与错误数总是各加一。CLOSED 下累计错误率达到阈值时熔断；
// HALF_OPEN 下立即重新熔断并清零计数。
func (cb *CircuitBreaker) RecordFailure() {
	cb.total.Add(1)
	cb.errors.Add(1)

	switch cb.State() {
	case StateClosed:
		if cb.tripped() {
			cb.transition(StateClosed, StateOpen, cb.tripped, cb.markOpen)
		}
	case StateHalfOpen:
		cb.transition(StateHalfOpen, StateOpen, nil, func() {
			cb.markOpen()
			cb.resetCounts()
		})
	}
}

// RecordTimeout 等同于 RecordFailure
func (cb *CircuitBreaker) RecordTimeout() {
	cb.RecordFailure()
}

// IncrementHalfOpenRequest 占用一个探测名额，非 HALF_OPEN 状态下为空操作
func (cb *CircuitBreaker) IncrementHalfOpenRequest() {
	if cb.State() == StateHalfOpen {
		cb.halfOpen.Add(1)
	}
}

func (cb *CircuitBreaker) tripped() bool {
	total := cb.total.Load()
	if total <= 0 {
		return false
	}
	return float64(cb.errors.Load())/float64(total) >= cb.cfg.ErrorThreshold
}

func (cb *CircuitBreaker) markOpen() {
	cb.lastOpenTime.Store(cb.now().UnixNano())
}

func (cb *CircuitBreaker) resetCounts() {
	cb.total.Store(0)
	cb.errors.Store(0)
	cb.halfOpen.Store(0)
}

// transition 在锁内确认当前状态为 from 且 guard 成立后执行 mutate 并切换到 to。
// mutate 先于状态写入执行，无锁读者看到新状态时一定能看到新的计时与计数。
func (cb *CircuitBreaker) transition(from, to State, guard func() bool, mutate func()) bool {
	cb.mu.Lock()
	if State(cb.state.Load()) != from || (guard != nil && !guard()) {
		cb.mu.Unlock()
		return false
	}
	if mutate != nil {
		mutate()
	}
	cb.state.Store(int32(to))
	counts := cb.Counts()
	cb.mu.Unlock()

	cb.onStateChange(from, to, counts)
	return true
}

func (cb *CircuitBreaker) onStateChange(from, to State, counts Counts) {
	fields := []clog.Field{
		clog.String("from", from.String()),
		clog.String("to", to.String()),
		clog.Int64("total", counts.TotalRequests),
		clog.Int64("errors", counts.ErrorRequests),
	}
	if to == StateOpen {
		cb.logger.Warn("circuit breaker opened", fields...)
	} else {
		cb.logger.Info("circuit breaker state changed", fields...)
	}

	cb.changes.Inc(context.Background(),
		metrics.L(LabelName, cb.cfg.Name),
		metrics.L(LabelFromState, from.String()),
		metrics.L(LabelToState, to.String()),
	)

	for _, hook := range cb.hooks {
		hook(cb.cfg.Name, from, to)
	}
}

// Name 资源名称
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// State 当前状态
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// Counts 当前计数快照，各字段分别原子读取
func (cb *CircuitBreaker) Counts() Counts {
	return Counts{
		TotalRequests:    cb.total.Load(),
		ErrorRequests:    cb.errors.Load(),
		HalfOpenRequests: cb.halfOpen.Load(),
	}
}

// Timeout 调用方应使用的请求超时
func (cb *CircuitBreaker) Timeout() time.Duration {
	return cb.cfg.Timeout
}

// Config 返回生效的配置副本
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}
