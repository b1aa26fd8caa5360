package breaker

// 指标名称
const (
	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "breaker_state_changes_total"

	// MetricRejectsTotal 被熔断拒绝的请求数 (Counter)
	MetricRejectsTotal = "breaker_rejects_total"

	// MetricCallsTotal 经 Execute / 拦截器执行的调用数 (Counter)
	MetricCallsTotal = "breaker_calls_total"

	LabelName      = "name"
	LabelFromState = "from_state"
	LabelToState   = "to_state"
	LabelResult    = "result"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultTimeout = "timeout"
)
