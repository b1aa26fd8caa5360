package testkit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/connector"
)

// NewRedis 启动 miniredis 并返回已连接的 RedisConnector，两者都在测试结束时关闭
func NewRedis(t *testing.T) (*miniredis.Miniredis, connector.RedisConnector) {
	t.Helper()
	mr := miniredis.RunT(t)

	conn, err := connector.NewRedis(&connector.RedisConfig{Name: "test-redis", Addr: mr.Addr()},
		connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })

	return mr, conn
}
