package guard

import (
	"context"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/config"
)

// Watch 监听配置中 key 对应的段，变化时重新解析并 Reload，阻塞直到 ctx 取消
//
// 解析或校验失败的变更会被记录并忽略，继续使用原配置。
//
//	go func() {
//	    _ = guard.Watch(ctx, loader, "guard", g)
//	}()
func Watch(ctx context.Context, loader config.Loader, key string, g *Guard) error {
	events, err := loader.Watch(ctx, key)
	if err != nil {
		return err
	}

	for ev := range events {
		var cfg Config
		if err := loader.UnmarshalKey(key, &cfg); err != nil {
			g.logger.ErrorContext(ctx, "decode guard config failed", clog.String("key", ev.Key), clog.Error(err))
			continue
		}
		if err := g.Reload(ctx, cfg); err != nil {
			g.logger.ErrorContext(ctx, "reload guard config failed", clog.String("key", ev.Key), clog.Error(err))
		}
	}
	return ctx.Err()
}
