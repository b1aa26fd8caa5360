package connector

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/xerrors"
)

type redisConnector struct {
	cfg     *RedisConfig
	client  *redis.Client
	logger  clog.Logger
	healthy atomic.Bool
	closed  atomic.Bool
}

// NewRedis 创建 Redis 连接器，客户端立即创建，连接在 Connect 时探测
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	c := &redisConnector{
		cfg:    cfg,
		logger: o.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if cfg.EnableTracing {
		if err := redisotel.InstrumentTracing(c.client); err != nil {
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument tracing", cfg.Name)
		}
	}
	if cfg.EnableMetrics {
		if err := redisotel.InstrumentMetrics(c.client); err != nil {
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument metrics", cfg.Name)
		}
	}

	return c, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return xerrors.Wrapf(ErrClientNil, "redis connector[%s]: closed", c.cfg.Name)
	}
	if c.healthy.Load() {
		return nil
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("failed to connect to redis", clog.Error(err), clog.String("addr", c.cfg.Addr))
		return xerrors.Wrapf(ErrConnection, "redis connector[%s]: %v", c.cfg.Name, err)
	}

	c.healthy.Store(true)
	c.logger.Info("connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

func (c *redisConnector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthy.Store(false)

	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return xerrors.Wrapf(ErrClientNil, "redis connector[%s]", c.cfg.Name)
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

func (c *redisConnector) GetClient() *redis.Client {
	if c.closed.Load() {
		return nil
	}
	return c.client
}
