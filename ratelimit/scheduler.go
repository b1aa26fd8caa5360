package ratelimit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/xerrors"
)

// resetTimeout 单次定时重置的超时
const resetTimeout = 30 * time.Second

// NewResetScheduler 创建按 cron 表达式定时执行 ClearLimiters 的调度器，返回的调度器尚未启动
//
// spec 使用带秒的六段格式，也接受 "@daily"、"@every 1h" 等描述符：
//
//	c, err := ratelimit.NewResetScheduler(limiter, "0 0 4 * * *", logger)
//	if err != nil {
//	    return err
//	}
//	c.Start()
//	defer c.Stop()
func NewResetScheduler(r *Registry, spec string, logger clog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("ratelimit", "reset")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		defer cancel()
		if err := r.ClearLimiters(ctx); err != nil {
			logger.Error("scheduled limiter reset failed", clog.Error(err))
		}
	})
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidSchedule, "%q: %v", spec, err)
	}

	logger.Info("limiter reset scheduled", clog.String("spec", spec))
	return c, nil
}

// cronLogger 将 cron 的日志接口适配到 clog
type cronLogger struct {
	logger clog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(kvFields(keysAndValues), clog.Error(err))...)
}

func kvFields(kv []any) []clog.Field {
	fields := make([]clog.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, clog.Any(key, kv[i+1]))
	}
	return fields
}
