package idgen

import (
	"context"
	"errors"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/connector"
	"github.com/ceyewan/bastion/metrics"
	"github.com/ceyewan/bastion/xerrors"
)

// 解析器默认值
const (
	DefaultResolverPrefix = "bastion:idgen:module:"
	DefaultLocalCacheSize = 1024
	DefaultLocalCacheTTL  = time.Minute
)

// ResolverOption 解析器选项
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	redis     *redis.Client
	prefix    string
	redisTTL  time.Duration
	localSize int
	localTTL  time.Duration
}

// WithRedisCache 在本地缓存与存储之间加一层 Redis 缓存
func WithRedisCache(conn connector.RedisConnector) ResolverOption {
	return func(o *resolverOptions) {
		if conn != nil {
			o.redis = conn.GetClient()
		}
	}
}

// WithRedisPrefix 设置 Redis 缓存键前缀（默认 "bastion:idgen:module:"）
func WithRedisPrefix(prefix string) ResolverOption {
	return func(o *resolverOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithRedisTTL 设置 Redis 缓存过期时间，默认 0 表示不过期
func WithRedisTTL(ttl time.Duration) ResolverOption {
	return func(o *resolverOptions) {
		if ttl > 0 {
			o.redisTTL = ttl
		}
	}
}

// WithLocalCache 设置进程内缓存容量与写入后过期时间
func WithLocalCache(size int, ttl time.Duration) ResolverOption {
	return func(o *resolverOptions) {
		if size > 0 {
			o.localSize = size
		}
		if ttl > 0 {
			o.localTTL = ttl
		}
	}
}

// ModuleResolver 将模块标识映射为生成器身份
//
// 查找顺序：进程内缓存（otter）→ Redis（msgpack 编码）→ IdentityStore。
// 模块未登记或已停用时使用 DefaultIdentity；默认身份只进入进程内缓存，
// 不写入 Redis，登记后最迟在本地缓存过期时生效。
// 解析出的身份总是交给 Registry，同一身份复用同一个生成器。
type ModuleResolver struct {
	registry *Registry
	store    IdentityStore
	opts     resolverOptions
	local    *otter.Cache[string, Identity]
	logger   clog.Logger
	resolves metrics.Counter
}

// NewModuleResolver 创建模块解析器
func NewModuleResolver(reg *Registry, store IdentityStore, opts ...ResolverOption) *ModuleResolver {
	o := resolverOptions{
		prefix:    DefaultResolverPrefix,
		localSize: DefaultLocalCacheSize,
		localTTL:  DefaultLocalCacheTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &ModuleResolver{
		registry: reg,
		store:    store,
		opts:     o,
		local: otter.Must(&otter.Options[string, Identity]{
			MaximumSize:      o.localSize,
			ExpiryCalculator: otter.ExpiryWriting[string, Identity](o.localTTL),
		}),
		logger:   reg.logger.WithNamespace("resolver"),
		resolves: reg.inst.resolves,
	}
}

// GenerateForModule 以模块对应的身份生成 ID
func (m *ModuleResolver) GenerateForModule(ctx context.Context, moduleKey string) (string, error) {
	id, err := m.Resolve(ctx, moduleKey)
	if err != nil {
		return "", err
	}
	sf, err := m.registry.Generator(id)
	if err != nil {
		return "", xerrors.Wrapf(err, "module %q", moduleKey)
	}
	return sf.NextString()
}

// Resolve 返回模块对应的身份
func (m *ModuleResolver) Resolve(ctx context.Context, moduleKey string) (Identity, error) {
	if moduleKey == "" {
		return Identity{}, ErrModuleKeyEmpty
	}
	if id, ok := m.local.GetIfPresent(moduleKey); ok {
		m.record(ctx, sourceLocal)
		return id, nil
	}

	// 同一 key 的并发未命中只会触发一次加载
	return m.local.Get(ctx, moduleKey, otter.LoaderFunc[string, Identity](m.load))
}

// Invalidate 清除模块在本地与 Redis 中的缓存，登记或停用模块后调用
func (m *ModuleResolver) Invalidate(ctx context.Context, moduleKey string) error {
	m.local.Invalidate(moduleKey)
	if m.opts.redis == nil {
		return nil
	}
	if err := m.opts.redis.Del(ctx, m.opts.prefix+moduleKey).Err(); err != nil {
		return xerrors.Wrapf(err, "invalidate module %q", moduleKey)
	}
	return nil
}

func (m *ModuleResolver) load(ctx context.Context, moduleKey string) (Identity, error) {
	if id, ok := m.loadRedis(ctx, moduleKey); ok {
		m.record(ctx, sourceRedis)
		return id, nil
	}

	if m.store == nil {
		m.record(ctx, sourceDefault)
		return DefaultIdentity, nil
	}
	id, found, err := m.store.Lookup(ctx, moduleKey)
	if err != nil {
		return Identity{}, err
	}
	if !found {
		m.logger.WarnContext(ctx, "module not registered, using default identity", clog.String("module", moduleKey))
		m.record(ctx, sourceDefault)
		return DefaultIdentity, nil
	}
	if err := id.Validate(); err != nil {
		return Identity{}, xerrors.Wrapf(err, "module %q", moduleKey)
	}

	m.storeRedis(ctx, moduleKey, id)
	m.record(ctx, sourceStore)
	return id, nil
}

// loadRedis Redis 出错时视为未命中，由存储兜底
func (m *ModuleResolver) loadRedis(ctx context.Context, moduleKey string) (Identity, bool) {
	if m.opts.redis == nil {
		return Identity{}, false
	}
	data, err := m.opts.redis.Get(ctx, m.opts.prefix+moduleKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, false
	}
	if err != nil {
		m.logger.WarnContext(ctx, "read identity cache failed", clog.String("module", moduleKey), clog.Error(err))
		return Identity{}, false
	}

	var id Identity
	if err := msgpack.Unmarshal(data, &id); err != nil {
		m.logger.WarnContext(ctx, "decode identity cache failed", clog.String("module", moduleKey), clog.Error(err))
		return Identity{}, false
	}
	if err := id.Validate(); err != nil {
		m.logger.WarnContext(ctx, "cached identity invalid", clog.String("module", moduleKey), clog.Error(err))
		return Identity{}, false
	}
	return id, true
}

func (m *ModuleResolver) storeRedis(ctx context.Context, moduleKey string, id Identity) {
	if m.opts.redis == nil {
		return
	}
	data, err := msgpack.Marshal(id)
	if err != nil {
		m.logger.WarnContext(ctx, "encode identity failed", clog.String("module", moduleKey), clog.Error(err))
		return
	}
	if err := m.opts.redis.Set(ctx, m.opts.prefix+moduleKey, data, m.opts.redisTTL).Err(); err != nil {
		m.logger.WarnContext(ctx, "write identity cache failed", clog.String("module", moduleKey), clog.Error(err))
	}
}

func (m *ModuleResolver) record(ctx context.Context, source string) {
	m.resolves.Inc(ctx, metrics.L(LabelSource, source))
}
