package clog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ceyewan/bastion/xerrors"
)

// Field 是 slog.Attr 的类型别名
type Field = slog.Attr

func String(k, v string) Field { return slog.String(k, v) }
func Int(k string, v int) Field { return slog.Int(k, v) }
func Int64(k string, v int64) Field { return slog.Int64(k, v) }
func Float64(k string, v float64) Field { return slog.Float64(k, v) }
func Bool(k string, v bool) Field { return slog.Bool(k, v) }
func Time(k string, v time.Time) Field { return slog.Time(k, v) }
func Duration(k string, v time.Duration) Field { return slog.Duration(k, v) }
func Any(k string, v any) Field { return slog.Any(k, v) }

// Component 标记日志来源组件，例如 breaker、ratelimit、idgen
func Component(name string) Field {
	return slog.String("component", name)
}

// Error 错误字段，输出 err_msg；错误链上带有错误码时输出 error={msg, code}。
//
//	logger.Error("resolve identity failed", clog.Error(err))
func Error(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	if code := xerrors.GetCode(err); code != "" {
		return slog.Group("error",
			slog.String("msg", err.Error()),
			slog.String("code", code),
		)
	}
	return slog.String("err_msg", err.Error())
}

// ErrorWithType 额外输出错误的具体类型，便于排查被包装的底层驱动错误。
func ErrorWithType(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Group("error",
		slog.String("msg", err.Error()),
		slog.String("type", fmt.Sprintf("%T", err)),
	)
}
