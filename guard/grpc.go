package guard

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// MetadataUserID 携带用户标识的 gRPC metadata 键
const MetadataUserID = "x-user-id"

// UnaryServerInterceptor 返回 gRPC 一元调用服务端拦截器
//
// 以完整方法名（如 "/order.v1.Order/Create"）作为 API 维度与熔断资源名，
// 排除路径同样按方法名匹配。熔断拒绝返回 Unavailable，限流拒绝返回 ResourceExhausted；
// 处理器返回 Unknown、Internal、Unavailable、DataLoss 时计为失败。
//
//	server := grpc.NewServer(grpc.ChainUnaryInterceptor(g.UnaryServerInterceptor()))
func (g *Guard) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		st := g.state.Load()
		if st.skip(info.FullMethod) {
			return handler(ctx, req)
		}

		r := request{path: info.FullMethod, userID: metadataValue(ctx, MetadataUserID), ip: peerIP(ctx)}
		cb, reason := g.admit(ctx, st, r)
		switch reason {
		case "":
		case reasonBreaker:
			g.reject(ctx, transportGRPC, reason, r)
			return nil, status.Error(codes.Unavailable, MessageUnavailable)
		default:
			g.reject(ctx, transportGRPC, reason, r)
			return nil, status.Error(codes.ResourceExhausted, MessageTooManyRequests)
		}

		start := g.opts.now()
		resp, err := handler(ctx, req)
		g.finish(cb, start, serverFailure(err))
		return resp, err
	}
}

// serverFailure 只有表示服务自身故障的状态码计为失败，非 status 错误视为 Unknown
func serverFailure(err error) bool {
	switch status.Code(err) {
	case codes.Unknown, codes.Internal, codes.Unavailable, codes.DataLoss:
		return true
	default:
		return false
	}
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// peerIP 优先使用代理写入的 x-forwarded-for，其次是连接的对端地址
func peerIP(ctx context.Context) string {
	if ip := firstHop(metadataValue(ctx, "x-forwarded-for")); ip != "" {
		return ip
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return ""
}
