package breaker

import "github.com/ceyewan/bastion/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrOpenState 熔断器拒绝了本次调用，仅由 Execute 与 gRPC 拦截器返回
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)

// CodeOpen ErrOpenState 携带的错误码
const CodeOpen = "BREAKER_OPEN"
