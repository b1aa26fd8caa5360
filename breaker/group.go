package breaker

import (
	"sort"
	"sync"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// GroupConfig 熔断器组配置
//
//	breaker:
//	  default:
//	    error_threshold: 0.5
//	    open_duration: 60s
//	  overrides:
//	    /api/order/create:
//	      error_threshold: 0.2
type GroupConfig struct {
	Default   Config            `json:"default" yaml:"default" mapstructure:"default"`
	Overrides map[string]Config `json:"overrides" yaml:"overrides" mapstructure:"overrides"`
}

// Group 按资源名懒创建熔断器，每个名称在进程生命周期内只有一个实例
type Group struct {
	cfg      GroupConfig
	opts     []Option
	logger   clog.Logger
	breakers sync.Map // name -> *CircuitBreaker
}

// NewGroup 创建熔断器组，默认配置与所有覆盖项在此一次性校验
func NewGroup(cfg *GroupConfig, opts ...Option) (*Group, error) {
	if cfg == nil {
		cfg = &GroupConfig{}
	}
	if err := cfg.Default.Validate(); err != nil {
		return nil, err
	}
	for name, override := range cfg.Overrides {
		merged := cfg.Default.merge(override)
		merged.Name = name
		if err := merged.Validate(); err != nil {
			return nil, err
		}
	}

	o := applyOptions(opts)
	return &Group{
		cfg:    *cfg,
		opts:   opts,
		logger: o.logger,
	}, nil
}

// Get 返回 name 对应的熔断器，不存在时创建；并发首次访问只有一个实例会被保留
func (g *Group) Get(name string) *CircuitBreaker {
	if v, ok := g.breakers.Load(name); ok {
		return v.(*CircuitBreaker)
	}

	cfg := g.cfg.Default
	if override, ok := g.cfg.Overrides[name]; ok {
		cfg = cfg.merge(override)
	}
	cfg.Name = name

	cb, err := New(&cfg, g.opts...)
	if err != nil {
		// 配置已在 NewGroup 中校验，只有 Meter 创建指标失败时会走到这里
		g.logger.Error("create circuit breaker failed, using unmetered breaker",
			clog.String("name", name), clog.Error(err))
		opts := append(append([]Option(nil), g.opts...), WithMeter(metrics.Discard()))
		cb, _ = New(&cfg, opts...)
	}

	actual, loaded := g.breakers.LoadOrStore(name, cb)
	if !loaded {
		g.logger.Debug("circuit breaker created", clog.String("name", name))
	}
	return actual.(*CircuitBreaker)
}

// Lookup 返回已存在的熔断器，不会创建
func (g *Group) Lookup(name string) (*CircuitBreaker, bool) {
	v, ok := g.breakers.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*CircuitBreaker), true
}

// States 返回所有已创建熔断器的当前状态
func (g *Group) States() map[string]State {
	out := make(map[string]State)
	g.breakers.Range(func(key, value any) bool {
		out[key.(string)] = value.(*CircuitBreaker).State()
		return true
	})
	return out
}

// Names 返回已创建熔断器的名称，按字典序排列
func (g *Group) Names() []string {
	var names []string
	g.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}
