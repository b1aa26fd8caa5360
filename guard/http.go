package guard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/bastion/idgen"
)

// 请求头与上下文键
const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	// ContextUserID 认证中间件写入 gin.Context 的用户标识键
	ContextUserID = "user_id"

	// ContextRequestID 与 clog.WithStandardContext 提取的键一致
	ContextRequestID = "request_id"
)

// clientIPHeaders 按顺序查找客户端真实 IP
var clientIPHeaders = []string{"X-Forwarded-For", "Proxy-Client-IP", "WL-Proxy-Client-IP"}

// Gin 返回准入控制中间件，应注册在认证中间件之后，以便读取用户标识
func (g *Guard) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := g.state.Load()
		path := c.Request.URL.Path
		if st.skip(path) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		req := request{path: apiKey(c), userID: ginUserID(c), ip: ClientIP(c.Request)}
		cb, reason := g.admit(ctx, st, req)
		switch reason {
		case "":
		case reasonBreaker:
			g.reject(ctx, transportHTTP, reason, req)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    http.StatusServiceUnavailable,
				"message": MessageUnavailable,
			})
			return
		default:
			g.reject(ctx, transportHTTP, reason, req)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": MessageTooManyRequests,
			})
			return
		}

		start := g.opts.now()
		c.Next()
		g.finish(cb, start, c.Writer.Status() >= http.StatusInternalServerError || len(c.Errors) > 0)
	}
}

// apiKey 已匹配路由时取路由模板（如 /api/orders/:id），否则取原始路径
func apiKey(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}

// RequestID 为缺少 X-Request-ID 的请求生成 UUIDv7，并写入响应头与请求上下文
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = idgen.UUID()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ContextRequestID, id))
		c.Next()
	}
}

func ginUserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserID); ok && v != nil {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		default:
			return fmt.Sprint(id)
		}
	}
	return c.GetHeader(HeaderUserID)
}

// ClientIP 依次读取 X-Forwarded-For、Proxy-Client-IP、WL-Proxy-Client-IP，
// 都缺失时使用连接的远端地址；多级代理时取第一个地址
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		if ip := firstHop(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	return hostOnly(r.RemoteAddr)
}

func firstHop(v string) string {
	if v == "" || strings.EqualFold(v, "unknown") {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
