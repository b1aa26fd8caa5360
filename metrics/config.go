package metrics

import "strings"

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "order-service"
//	  version: "v1.2.3"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
//
// Enabled 为 false 时 New 返回 noop Meter。Port 大于 0 时启动独立的 Prometheus HTTP 服务，
// 否则由调用方通过 Meter.Handler() 挂载到自己的路由上。
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`

	// Runtime 同时导出 Go 运行时指标（goroutine、内存、GC）
	Runtime bool `mapstructure:"runtime"`
}

func (c *Config) setDefaults() {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "bastion"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
