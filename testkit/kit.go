// Package testkit 提供 bastion 各包测试共用的依赖：日志、指标、可控时钟、
// 基于 miniredis 的 Redis 连接器与 SQLite 内存库。
package testkit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
	Clock  *Clock
}

// NewKit 返回一个包含默认依赖的测试工具包
func NewKit(t *testing.T) *Kit {
	t.Helper()
	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  NewMeter(t),
		Clock:  NewClock(),
	}
}

// NewLogger 默认静默；设置 BASTION_TEST_LOG=1 时输出 debug 级别的 console 日志
func NewLogger() clog.Logger {
	if os.Getenv("BASTION_TEST_LOG") == "" {
		return clog.Discard()
	}
	logger, err := clog.New(clog.NewDevDefaultConfig())
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回启用的 Meter，拥有独立的 Prometheus Registry，测试结束时关闭
func NewMeter(t *testing.T) metrics.Meter {
	t.Helper()
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "bastion-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter
}

// Scrape 读取 Meter 的 Prometheus 抓取结果
func Scrape(t *testing.T, meter metrics.Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

// NewID 返回一个短的唯一 ID，用于隔离测试间的 key 或库名
func NewID() string {
	return uuid.New().String()[0:8]
}
