// Package connector 管理 bastion 组件依赖的外部连接：Redis 与 GORM（MySQL / SQLite）。
//
// 分布式限流器借用 RedisConnector，ID 生成器的模块身份解析借用 RedisConnector 与
// MySQLConnector / SQLiteConnector。组件只借用连接，不负责关闭；
// 应用层按 LIFO 顺序先关闭组件，再关闭 Connector。
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//	    connector.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//	    return err
//	}
//	limiter, _ := ratelimit.NewDistributed(conn, nil)
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Connector 所有连接器的通用行为，方法均并发安全。
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等
	Close() error

	// HealthCheck 主动探测连接，并更新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最近一次探测的结果，不阻塞
	IsHealthy() bool

	// Name 连接实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端，Connect 之前或 Close 之后可能为 nil
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// MySQLConnector MySQL 连接器
type MySQLConnector interface {
	TypedConnector[*gorm.DB]
}

// SQLiteConnector SQLite 连接器
type SQLiteConnector interface {
	TypedConnector[*gorm.DB]
}
