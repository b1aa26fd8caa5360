package config

import "github.com/ceyewan/bastion/xerrors"

// ErrValidationFailed 配置校验失败
var ErrValidationFailed = xerrors.New("configuration validation failed")

// IsValidationFailed 检查错误是否为配置校验失败
func IsValidationFailed(err error) bool {
	return xerrors.Is(err, ErrValidationFailed)
}
