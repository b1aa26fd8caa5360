package clog

import "github.com/ceyewan/bastion/xerrors"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置（console 格式，debug 级别）。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid config")
	}

	options := applyOptions(opts...)
	return newLogger(config, options)
}

// MustNew 与 New 相同，出错时 panic，仅用于 main 函数初始化。
func MustNew(config *Config, opts ...Option) Logger {
	return xerrors.Must(New(config, opts...))
}
