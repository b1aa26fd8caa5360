package metrics

import (
	"net/http"
	"strconv"
)

// 常用标签键
const (
	LabelService     = "service"
	LabelOperation   = "operation"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
)

const (
	OperationHTTPServer = "http.server"

	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"

	// UnknownRoute 未命中路由时的统一标签值，避免原始 URL 导致高基数
	UnknownRoute = "unknown"
)

// HTTPStatusClass 返回 1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 将状态码映射为 success/rejected/error
//
// 429 与 503 是准入层（限流、熔断）主动拒绝的结果，单独归类为 rejected。
func HTTPOutcome(status int) string {
	switch {
	case status >= 200 && status < 400:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
