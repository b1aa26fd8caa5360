package guard

import "github.com/ceyewan/bastion/xerrors"

// 错误定义
var (
	// ErrLimiterNil 缺少限流器
	ErrLimiterNil = xerrors.New("guard: limiter is nil")

	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = xerrors.New("guard: invalid config")
)

// 拒绝响应中的提示信息
const (
	MessageTooManyRequests = "too many requests, please retry later"
	MessageUnavailable     = "service temporarily unavailable, please retry later"
)
