package guard

// Metrics 指标常量定义
const (
	// MetricRejected 被准入控制拒绝的请求数 (Counter)
	MetricRejected = "guard_rejected_total"

	// LabelReason 拒绝原因 (breaker/user/api/ip)
	LabelReason = "reason"

	// LabelTransport 入口类型 (http/grpc)
	LabelTransport = "transport"
)

const (
	reasonBreaker = "breaker"

	transportHTTP = "http"
	transportGRPC = "grpc"
)
