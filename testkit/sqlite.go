package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/connector"
)

// NewSQLiteConfig 返回独立命名的共享内存库配置，不同测试之间互不可见
func NewSQLiteConfig() *connector.SQLiteConfig {
	return &connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: "file:" + NewID() + "?mode=memory&cache=shared",
	}
}

// NewSQLite 返回已连接的 SQLite 内存库连接器，测试结束时关闭
func NewSQLite(t *testing.T) connector.SQLiteConnector {
	t.Helper()
	conn, err := connector.NewSQLite(NewSQLiteConfig(), connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
