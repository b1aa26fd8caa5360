package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
	"github.com/ceyewan/bastion/xerrors"
)

// Execute 在熔断保护下执行 fn
//
// 被拒绝时返回包装了 ErrOpenState 的错误，fn 不会执行。放行后：
// 耗时超过 Timeout 或 fn 返回 context.DeadlineExceeded 记为超时，
// 其他错误记为失败，否则记为成功。fn 的错误原样返回，不做重试。
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.AllowRequest() {
		cb.logger.DebugContext(ctx, "request rejected by circuit breaker", clog.String("state", cb.State().String()))
		return xerrors.WithCode(xerrors.Wrapf(ErrOpenState, "breaker %s", cb.cfg.Name), CodeOpen)
	}
	if cb.State() == StateHalfOpen {
		cb.IncrementHalfOpenRequest()
	}

	start := cb.now()
	err := fn(ctx)
	cb.record(ctx, classify(err, cb.now().Sub(start), cb.cfg.Timeout))
	return err
}

func classify(err error, elapsed, timeout time.Duration) string {
	switch {
	case timeout > 0 && elapsed > timeout:
		return resultTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return resultTimeout
	case err != nil:
		return resultFailure
	default:
		return resultSuccess
	}
}

func (cb *CircuitBreaker) record(ctx context.Context, result string) {
	switch result {
	case resultTimeout:
		cb.RecordTimeout()
	case resultFailure:
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}
	cb.calls.Inc(ctx, metrics.L(LabelName, cb.cfg.Name), metrics.L(LabelResult, result))
}

// IsOpenError 判断错误是否为熔断拒绝
func IsOpenError(err error) bool {
	return errors.Is(err, ErrOpenState)
}
