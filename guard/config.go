package guard

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ceyewan/bastion/breaker"
	"github.com/ceyewan/bastion/xerrors"
)

// 默认阈值
const (
	DefaultUserQPS = 10
	DefaultAPIQPS  = 100
	DefaultIPQPS   = 20
)

// DefaultExcludePaths 默认不做准入检查的路径
var DefaultExcludePaths = []string{"/api/auth/login", "/api/auth/captcha"}

// Config 准入控制配置
//
//	guard:
//	  enabled: true
//	  exclude_paths: ["/api/auth/login", "/api/public/**"]
//	  user_qps: 10
//	  api_qps: 100
//	  ip_qps: 20
//	  reset_cron: "0 0 4 * * *"
//	  breaker:
//	    enabled: true
//	    error_threshold: 0.5
//	    timeout: 3s
//	    overrides:
//	      /api/order/create:
//	        error_threshold: 0.2
type Config struct {
	// Enabled 为 false 时所有请求直接放行
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// ExcludePaths 精确匹配，或以 "/**" 结尾表示前缀匹配；nil 时使用 DefaultExcludePaths
	ExcludePaths []string `json:"exclude_paths" yaml:"exclude_paths" mapstructure:"exclude_paths"`

	UserQPS float64 `json:"user_qps" yaml:"user_qps" mapstructure:"user_qps"`
	APIQPS  float64 `json:"api_qps" yaml:"api_qps" mapstructure:"api_qps"`
	IPQPS   float64 `json:"ip_qps" yaml:"ip_qps" mapstructure:"ip_qps"`

	Breaker BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`

	// ResetCron 定时清空全部令牌桶的 cron 表达式（带秒），为空表示不启用
	ResetCron string `json:"reset_cron" yaml:"reset_cron" mapstructure:"reset_cron"`
}

// BreakerConfig 按 API 路径熔断的配置，Config 的非零字段作为每个路径的默认值
type BreakerConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	breaker.Config `yaml:",inline" mapstructure:",squash"`

	Overrides map[string]breaker.Config `json:"overrides" yaml:"overrides" mapstructure:"overrides"`
}

func (c BreakerConfig) group() *breaker.GroupConfig {
	return &breaker.GroupConfig{Default: c.Config, Overrides: c.Overrides}
}

// DefaultConfig 返回启用限流与熔断的默认配置
func DefaultConfig() Config {
	c := Config{Enabled: true, Breaker: BreakerConfig{Enabled: true}}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.ExcludePaths == nil {
		c.ExcludePaths = append([]string(nil), DefaultExcludePaths...)
	}
	if c.UserQPS == 0 {
		c.UserQPS = DefaultUserQPS
	}
	if c.APIQPS == 0 {
		c.APIQPS = DefaultAPIQPS
	}
	if c.IPQPS == 0 {
		c.IPQPS = DefaultIPQPS
	}
}

// Validate 校验配置，零值字段视为使用默认值
func (c Config) Validate() error {
	c.setDefaults()
	err := validation.ValidateStruct(&c,
		validation.Field(&c.UserQPS, validation.Min(0.0).Exclusive()),
		validation.Field(&c.APIQPS, validation.Min(0.0).Exclusive()),
		validation.Field(&c.IPQPS, validation.Min(0.0).Exclusive()),
		validation.Field(&c.ExcludePaths, validation.Each(validation.Required, validation.By(absolutePath))),
	)
	if err != nil {
		return xerrors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if _, err := breaker.NewGroup(c.Breaker.group()); err != nil {
		return xerrors.Wrapf(ErrInvalidConfig, "breaker: %v", err)
	}
	return nil
}

func absolutePath(v any) error {
	if s, _ := v.(string); !strings.HasPrefix(s, "/") {
		return xerrors.New("must start with /")
	}
	return nil
}

// qpsChanged 任一作用域阈值变化时，已有令牌桶必须重建
func (c Config) qpsChanged(other Config) bool {
	return c.UserQPS != other.UserQPS || c.APIQPS != other.APIQPS || c.IPQPS != other.IPQPS
}

// pathMatcher 排除路径匹配
type pathMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPathMatcher(patterns []string) pathMatcher {
	m := pathMatcher{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

// match "/a/**" 同时匹配 "/a" 与 "/a/..."
func (m pathMatcher) match(path string) bool {
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
