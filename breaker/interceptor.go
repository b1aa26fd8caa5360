package breaker

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/bastion/xerrors"
)

// KeyFunc 从 gRPC 调用中提取熔断资源名
type KeyFunc func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string

// ServiceLevelKey 以连接目标作为资源名，例如 "dns:///inventory:9001"
func ServiceLevelKey() KeyFunc {
	return func(_ context.Context, fullMethod string, cc *grpc.ClientConn) string {
		if cc == nil {
			return fullMethod
		}
		return cc.Target()
	}
}

// MethodLevelKey 以完整方法名作为资源名，例如 "/inventory.v1.Stock/Reserve"
func MethodLevelKey() KeyFunc {
	return func(_ context.Context, fullMethod string, _ *grpc.ClientConn) string {
		return fullMethod
	}
}

// InterceptorOption 拦截器选项
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	keyFunc KeyFunc
}

// WithKeyFunc 设置资源名提取方式，默认 ServiceLevelKey
func WithKeyFunc(fn KeyFunc) InterceptorOption {
	return func(c *interceptorConfig) {
		if fn != nil {
			c.keyFunc = fn
		}
	}
}

// UnaryClientInterceptor 为出站 gRPC 调用提供熔断保护
//
// 只有表示下游不健康的状态码计为失败（Unavailable、Internal、Unknown、ResourceExhausted），
// DeadlineExceeded 计为超时；InvalidArgument、NotFound 等业务错误计为成功。
func (g *Group) UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	cfg := &interceptorConfig{keyFunc: ServiceLevelKey()}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		cb := g.Get(cfg.keyFunc(ctx, method, cc))
		if !cb.AllowRequest() {
			return xerrors.WithCode(xerrors.Wrapf(ErrOpenState, "breaker %s", cb.Name()), CodeOpen)
		}
		if cb.State() == StateHalfOpen {
			cb.IncrementHalfOpenRequest()
		}

		start := cb.now()
		err := invoker(ctx, method, req, reply, cc, callOpts...)
		result := classify(grpcFailure(err), cb.now().Sub(start), cb.cfg.Timeout)
		cb.record(ctx, result)
		return err
	}
}

// grpcFailure 将不代表下游故障的错误视为成功
func grpcFailure(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Internal, codes.Unknown, codes.ResourceExhausted:
		return err
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return nil
	}
}
