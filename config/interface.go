// Package config 为 bastion 提供基于 Viper 的配置加载与热更新。
//
// 加载优先级：环境变量 > .env > 环境特定配置（config.<env>.yaml）> 基础配置。
// 环境变量以 EnvPrefix 开头，"." 替换为 "_"，例如 guard.user_qps 对应 BASTION_GUARD_USER_QPS。
//
//	loader, _ := config.New(&config.Config{Name: "bastion", Paths: []string{"./configs"}})
//	if err := loader.Load(ctx); err != nil {
//	    return err
//	}
//	var cfg guard.Config
//	_ = loader.UnmarshalKey("guard", &cfg)
//
//	// 限流阈值热更新
//	go guard.Watch(ctx, loader, "guard", g)
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 加载配置并开始监听配置文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听指定 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 校验当前配置
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // 目前只有 "file"
	Timestamp time.Time
}
