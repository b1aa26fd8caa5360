package idgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/connector"
	"github.com/ceyewan/bastion/xerrors"
)

// ========================================
// WorkerID 租约 (Redis Lease)
// ========================================

// 租约默认值
const (
	DefaultLeasePrefix = "bastion:idgen:worker"
	DefaultLeaseTTL    = 30 * time.Second
)

// allocateScript 从 offset 开始环形遍历 KEYS，SET NX 抢占第一个空闲的 WorkerID
//
// KEYS[i+1] 对应 WorkerID i，全部键共用同一个 hash tag，Redis Cluster 下落在同一槽位。
const allocateScript = `
local owner = ARGV[1]
local ttl = tonumber(ARGV[2])
local offset = tonumber(ARGV[3])
local n = #KEYS

for i = 0, n - 1 do
  local id = (offset + i) % n
  if redis.call("SET", KEYS[id + 1], owner, "NX", "PX", ttl) then
    return id
  end
end
return -1
`

// renewScript 仅在租约仍属于自己时续期
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// releaseScript 仅在租约仍属于自己时删除
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	allocateLua = redis.NewScript(allocateScript)
	renewLua    = redis.NewScript(renewScript)
	releaseLua  = redis.NewScript(releaseScript)
)

// LeaseConfig WorkerID 租约配置
type LeaseConfig struct {
	// DatacenterID 租约所属数据中心，WorkerID 在数据中心内唯一
	DatacenterID int64 `json:"datacenter_id" yaml:"datacenter_id" mapstructure:"datacenter_id"`

	// Prefix Redis 键前缀（默认 "bastion:idgen:worker"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// TTL 租约有效期，每 TTL/3 续期一次（默认 30s）
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

func (c *LeaseConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultLeasePrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultLeaseTTL
	}
}

// Lease 通过 Redis 独占的一个生成器身份
//
// 多个实例部署在同一数据中心时，用租约自动分配互不冲突的 WorkerID：
//
//	lease, err := idgen.AcquireLease(ctx, redisConn, &idgen.LeaseConfig{DatacenterID: 1})
//	if err != nil {
//	    return err
//	}
//	defer lease.Release(context.Background())
//
//	go func() {
//	    if err := <-lease.KeepAlive(ctx); err != nil {
//	        // 租约丢失，必须停止使用该身份生成 ID
//	    }
//	}()
//	sf, _ := registry.Generator(lease.Identity())
type Lease struct {
	client *redis.Client
	cfg    LeaseConfig
	owner  string
	key    string
	id     Identity
	logger clog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// AcquireLease 在数据中心内抢占一个空闲的 WorkerID
func AcquireLease(ctx context.Context, conn connector.RedisConnector, cfg *LeaseConfig, opts ...Option) (*Lease, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}
	client := conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrap(connector.ErrClientNil, "idgen lease")
	}

	c := LeaseConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := (Identity{DatacenterID: c.DatacenterID}).Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	prefix := fmt.Sprintf("%s:%d", c.Prefix, c.DatacenterID)
	owner := UUID()

	keys := make([]string, MaxWorkerID+1)
	for i := range keys {
		keys[i] = leaseKey(prefix, int64(i))
	}

	// 随机起点，减少并发冲突
	offset := rand.Int64N(MaxWorkerID + 1)
	workerID, err := allocateLua.Run(ctx, client, keys, owner, c.TTL.Milliseconds(), offset).Int64()
	if err != nil {
		o.logger.Error("allocate worker id failed", clog.String("prefix", prefix), clog.Error(err))
		return nil, xerrors.Wrap(err, "allocate worker id")
	}
	if workerID < 0 {
		return nil, xerrors.Wrapf(ErrWorkerIDExhausted, "datacenter %d", c.DatacenterID)
	}

	l := &Lease{
		client: client,
		cfg:    c,
		owner:  owner,
		key:    keys[workerID],
		id:     Identity{WorkerID: workerID, DatacenterID: c.DatacenterID},
		logger: o.logger,
		stopCh: make(chan struct{}),
	}
	l.logger.Info("worker id allocated",
		clog.Int64("worker_id", workerID),
		clog.Int64("datacenter_id", c.DatacenterID),
		clog.String("key", l.key))
	return l, nil
}

// leaseKey 形如 {bastion:idgen:worker:1}:7
func leaseKey(prefix string, workerID int64) string {
	return fmt.Sprintf("{%s}:%d", prefix, workerID)
}

// Identity 租约对应的生成器身份
func (l *Lease) Identity() Identity {
	return l.id
}

// Renew 立即续期一次，租约已丢失时返回 ErrLeaseLost
func (l *Lease) Renew(ctx context.Context) error {
	n, err := renewLua.Run(ctx, l.client, []string{l.key}, l.owner, l.cfg.TTL.Milliseconds()).Int64()
	if err != nil {
		return xerrors.Wrap(err, "renew worker id lease")
	}
	if n == 0 {
		return xerrors.Wrapf(ErrLeaseLost, "key %s", l.key)
	}
	return nil
}

// KeepAlive 在后台每 TTL/3 续期一次
//
// 续期失败时向返回的通道发送错误并停止；ctx 取消或 Release 后通道关闭。
func (l *Lease) KeepAlive(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		ticker := time.NewTicker(l.cfg.TTL / 3)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Renew(ctx); err != nil {
					l.logger.Error("keep alive failed", clog.String("key", l.key), clog.Error(err))
					errCh <- err
					return
				}
			}
		}
	}()

	return errCh
}

// Release 停止续期并归还 WorkerID，可重复调用
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })

	if err := releaseLua.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return xerrors.Wrap(err, "release worker id lease")
	}
	l.logger.Info("worker id released", clog.Int64("worker_id", l.id.WorkerID), clog.String("key", l.key))
	return nil
}
