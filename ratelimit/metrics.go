package ratelimit

// Metrics 指标常量定义
const (
	// MetricAllowed 允许通过的请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricErrors 后端错误数，出错时放行 (Counter)
	MetricErrors = "ratelimit_errors_total"

	// MetricResets ClearLimiters 执行次数 (Counter)
	MetricResets = "ratelimit_resets_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"

	// LabelScope 作用域标签 (user/api/ip)
	LabelScope = "scope"
)

const (
	modeStandalone  = "standalone"
	modeDistributed = "distributed"
)
