package ratelimit

import "github.com/ceyewan/bastion/xerrors"

// 错误定义
var (
	// ErrConnectorNil 分布式模式缺少 Redis 连接器
	ErrConnectorNil = xerrors.New("ratelimit: connector is nil")

	// ErrUnknownScope 未定义的限流作用域
	ErrUnknownScope = xerrors.New("ratelimit: unknown scope")

	// ErrInvalidSchedule cron 表达式无效
	ErrInvalidSchedule = xerrors.New("ratelimit: invalid reset schedule")
)
