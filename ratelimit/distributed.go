package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/connector"
	"github.com/ceyewan/bastion/xerrors"
)

// luaScript 令牌桶的 Lua 实现，桶以 Hash 保存
//
// KEYS[1]: 令牌桶 key
// ARGV[1]: qps，仅在桶不存在时写入，之后沿用桶内保存的速率
// ARGV[2]: 桶容量，同上
// ARGV[3]: 当前时间（毫秒）
// ARGV[4]: 空闲过期时间（毫秒），0 表示不过期
//
// 返回 {allowed, 剩余令牌数（向下取整）}
const luaScript = `
local key = KEYS[1]
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "rate", "burst", "tokens", "ts")
local rate = tonumber(state[1])
local burst = tonumber(state[2])
local tokens = tonumber(state[3])
local ts = tonumber(state[4])

if rate == nil or burst == nil or tokens == nil or ts == nil then
  rate = tonumber(ARGV[1])
  burst = tonumber(ARGV[2])
  tokens = burst
  ts = now
end

-- 各节点时钟不一致时不倒退
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * rate / 1000)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", key, "rate", tostring(rate), "burst", tostring(burst), "tokens", tostring(tokens), "ts", tostring(ts))
if ttl > 0 then
  redis.call("PEXPIRE", key, ttl)
end

return {allowed, math.floor(tokens)}
`

// clearBatch 每轮 SCAN 的数量提示
const clearBatch = 500

// distributedLimiter 基于 Redis 的令牌桶
type distributedLimiter struct {
	cfg    DistributedConfig
	client *redis.Client
	script *redis.Script
	logger clog.Logger
}

// NewDistributed 创建分布式限流器
//
// 同一前缀下的所有实例共享令牌桶；qps 在桶创建时写入 Redis，集群内对该 key 固定。
func NewDistributed(redisConn connector.RedisConnector, cfg *DistributedConfig, opts ...Option) (*Registry, error) {
	if redisConn == nil {
		return nil, xerrors.WithCode(ErrConnectorNil, "redis_connector_required")
	}
	client := redisConn.GetClient()
	if client == nil {
		return nil, xerrors.Wrap(connector.ErrClientNil, "ratelimit")
	}

	c := DistributedConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts)
	l := &distributedLimiter{
		cfg:    c,
		client: client,
		script: redis.NewScript(luaScript),
	}
	r := newRegistry(l, modeDistributed, o)
	l.logger = r.logger

	r.logger.Info("distributed rate limiter created",
		clog.String("prefix", c.Prefix),
		clog.Duration("burst_window", c.BurstWindow),
		clog.Duration("idle_ttl", c.IdleTTL))
	return r, nil
}

func (l *distributedLimiter) key(scope Scope, key string) string {
	return l.cfg.Prefix + string(scope) + ":" + key
}

func (l *distributedLimiter) allow(ctx context.Context, scope Scope, key string, qps float64, now time.Time) (bool, error) {
	result, err := l.script.Run(ctx, l.client, []string{l.key(scope, key)},
		qps,
		burstFor(qps, l.cfg.BurstWindow),
		now.UnixMilli(),
		l.cfg.IdleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, xerrors.Wrap(err, "execute lua script")
	}
	if len(result) != 2 {
		return false, xerrors.New("invalid lua script result")
	}

	l.logger.DebugContext(ctx, "rate limit check",
		clog.String("scope", string(scope)),
		clog.String("key", key),
		clog.Bool("allowed", result[0] == 1),
		clog.Int64("remaining", result[1]))
	return result[0] == 1, nil
}

// clear 删除前缀下的全部令牌桶
func (l *distributedLimiter) clear(ctx context.Context) error {
	var deleted int64
	for _, scope := range Scopes() {
		iter := l.client.Scan(ctx, 0, l.cfg.Prefix+string(scope)+":*", clearBatch).Iterator()
		batch := make([]string, 0, clearBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == clearBatch {
				n, err := l.client.Del(ctx, batch...).Result()
				if err != nil {
					return xerrors.Wrap(err, "delete limiter keys")
				}
				deleted += n
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return xerrors.Wrap(err, "scan limiter keys")
		}
		if len(batch) > 0 {
			n, err := l.client.Del(ctx, batch...).Result()
			if err != nil {
				return xerrors.Wrap(err, "delete limiter keys")
			}
			deleted += n
		}
	}
	l.logger.DebugContext(ctx, "limiter keys deleted", clog.Int64("count", deleted))
	return nil
}

func (l *distributedLimiter) size(Scope) int {
	return -1
}
