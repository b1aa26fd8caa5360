// Package clog 为 bastion 提供基于 slog 的结构化日志组件。
//
// 熔断器、限流器、ID 生成器等组件均通过 WithLogger 注入 clog.Logger，
// 未注入时使用 Discard()，保证组件本身永远不依赖全局日志。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"},
//	    clog.WithNamespace("order-service"),
//	    clog.WithStandardContext(),
//	)
//	logger.Info("breaker opened", clog.String("name", "/api/order"))
//
// 组件内部派生子 Logger：
//
//	l := logger.WithNamespace("ratelimit")
package clog

import "context"

// Logger 日志接口
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// 带 Context 的版本会按 WithContextField 配置提取字段
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，以 "." 连接
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，对所有派生的子 Logger 同时生效
	SetLevel(level Level) error

	Flush()
}
