package connector

import "github.com/ceyewan/bastion/clog"

type options struct {
	logger clog.Logger
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置日志记录器，自动追加 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
