package clog

import (
	"context"
	"log/slog"
)

// appendContextFields 按配置从 ctx 中提取字段，缺失的键直接跳过。
func appendContextFields(ctx context.Context, options *options, attrs []slog.Attr) []slog.Attr {
	if options == nil || len(options.contextFields) == 0 {
		return attrs
	}
	for _, cf := range options.contextFields {
		if val := ctx.Value(cf.Key); val != nil {
			attrs = append(attrs, slog.Any(cf.FieldName, val))
		}
	}
	return attrs
}
