package idgen

import (
	"sync"

	"github.com/ceyewan/bastion/clog"
)

// Registry 按身份缓存 Snowflake 实例，每个身份在 Registry 生命周期内只创建一次
//
// Registry 应在进程启动时创建一个并注入到需要生成 ID 的服务中。
type Registry struct {
	opts       *options
	inst       *instruments
	logger     clog.Logger
	generators sync.Map // Identity -> *Snowflake
}

// NewRegistry 创建生成器注册表，opts 作用于其创建的所有生成器
func NewRegistry(opts ...Option) *Registry {
	o := applyOptions(opts)
	return &Registry{
		opts:   o,
		inst:   newInstruments(o.meter, o.logger),
		logger: o.logger,
	}
}

// Generator 返回身份对应的唯一生成器，首次访问时创建
func (r *Registry) Generator(id Identity) (*Snowflake, error) {
	if v, ok := r.generators.Load(id); ok {
		return v.(*Snowflake), nil
	}

	sf, err := newSnowflake(id, r.opts, r.inst)
	if err != nil {
		return nil, err
	}

	// 并发首次访问时落败的实例从未被使用，直接丢弃
	actual, loaded := r.generators.LoadOrStore(id, sf)
	if !loaded {
		r.logger.Info("snowflake generator created",
			clog.Int64("worker_id", id.WorkerID),
			clog.Int64("datacenter_id", id.DatacenterID))
	}
	return actual.(*Snowflake), nil
}

// GenerateID 使用默认身份 (0, 0) 生成 ID
func (r *Registry) GenerateID() (string, error) {
	return r.GeneratorID(DefaultIdentity.WorkerID, DefaultIdentity.DatacenterID)
}

// GeneratorID 使用指定身份生成 ID，身份无效时返回 ErrInvalidIdentity
func (r *Registry) GeneratorID(workerID, datacenterID int64) (string, error) {
	sf, err := r.Generator(Identity{WorkerID: workerID, DatacenterID: datacenterID})
	if err != nil {
		return "", err
	}
	return sf.NextString()
}

// Len 已创建的生成器数量
func (r *Registry) Len() int {
	n := 0
	r.generators.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
