package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ceyewan/bastion/xerrors"
)

// 默认值
const (
	DefaultErrorThreshold   = 0.5
	DefaultTimeout          = 3 * time.Second
	DefaultHalfOpenRequests = 3
	DefaultOpenDuration     = 60 * time.Second
)

// Config 熔断器配置
//
//	breaker:
//	  error_threshold: 0.5
//	  timeout: 3s
//	  half_open_requests: 3
//	  open_duration: 60s
type Config struct {
	// Name 受保护资源名称，为空时为 "default"
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// ErrorThreshold 累计错误率阈值，取值 (0, 1]，达到即熔断
	ErrorThreshold float64 `json:"error_threshold" yaml:"error_threshold" mapstructure:"error_threshold"`

	// Timeout 调用方自身的请求超时，熔断器不强制执行，
	// 仅在 Execute 与拦截器中用于把慢调用记为超时
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// HalfOpenRequests 半开状态下的探测名额
	HalfOpenRequests int `json:"half_open_requests" yaml:"half_open_requests" mapstructure:"half_open_requests"`

	// OpenDuration 打开后多久允许探测
	OpenDuration time.Duration `json:"open_duration" yaml:"open_duration" mapstructure:"open_duration"`
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.ErrorThreshold == 0 {
		c.ErrorThreshold = DefaultErrorThreshold
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = DefaultHalfOpenRequests
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = DefaultOpenDuration
	}
}

// Validate 校验配置，零值字段视为使用默认值
func (c Config) Validate() error {
	c.setDefaults()
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ErrorThreshold, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.HalfOpenRequests, validation.Min(1)),
		validation.Field(&c.OpenDuration, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "breaker config %q: %v", c.Name, err)
	}
	return nil
}

// merge 以 c 为基础，用 override 中的非零字段覆盖
func (c Config) merge(override Config) Config {
	if override.ErrorThreshold != 0 {
		c.ErrorThreshold = override.ErrorThreshold
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.HalfOpenRequests != 0 {
		c.HalfOpenRequests = override.HalfOpenRequests
	}
	if override.OpenDuration != 0 {
		c.OpenDuration = override.OpenDuration
	}
	return c
}
