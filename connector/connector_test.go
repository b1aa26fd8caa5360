package connector

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *RedisConfig
		wantErr bool
	}{
		{name: "nil", cfg: nil, wantErr: true},
		{name: "missing addr", cfg: &RedisConfig{}, wantErr: true},
		{name: "bad addr", cfg: &RedisConfig{Addr: "no-port"}, wantErr: true},
		{name: "negative db", cfg: &RedisConfig{Addr: "127.0.0.1:6379", DB: -1}, wantErr: true},
		{name: "ok", cfg: &RedisConfig{Addr: "127.0.0.1:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewRedis(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "default", conn.Name())
			_ = conn.Close()
		})
	}
}

func TestRedisLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	conn, err := NewRedis(&RedisConfig{Name: "limiter", Addr: mr.Addr()})
	require.NoError(t, err)

	assert.False(t, conn.IsHealthy())
	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, "limiter", conn.Name())

	require.NoError(t, conn.GetClient().Set(ctx, "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	mr.Close()
	err = conn.HealthCheck(ctx)
	assert.ErrorIs(t, err, ErrHealthCheck)
	assert.False(t, conn.IsHealthy())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Nil(t, conn.GetClient())
	assert.ErrorIs(t, conn.Connect(ctx), ErrClientNil)
}

func TestRedisConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	conn, err := NewRedis(&RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer conn.Close()

	assert.ErrorIs(t, conn.Connect(context.Background()), ErrConnection)
}

func TestRedisInstrumentation(t *testing.T) {
	mr := miniredis.RunT(t)
	conn, err := NewRedis(&RedisConfig{Addr: mr.Addr(), EnableTracing: true, EnableMetrics: true})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Connect(context.Background()))
}

func TestMySQLConfigValidation(t *testing.T) {
	_, err := NewMySQL(&MySQLConfig{Host: "127.0.0.1"})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewMySQL(nil)
	assert.ErrorIs(t, err, ErrConfig)

	conn, err := NewMySQL(&MySQLConfig{Host: "127.0.0.1", Username: "root", Database: "bastion"})
	require.NoError(t, err)
	assert.Nil(t, conn.GetClient())

	conn, err = NewMySQL(&MySQLConfig{DSN: "root:pw@tcp(127.0.0.1:3306)/bastion"})
	require.NoError(t, err)
	assert.Equal(t, "default", conn.Name())
}

func TestSQLiteLifecycle(t *testing.T) {
	ctx := context.Background()

	_, err := NewSQLite(&SQLiteConfig{})
	assert.ErrorIs(t, err, ErrConfig)

	conn, err := NewSQLite(&SQLiteConfig{
		Name:          "idgen",
		Path:          fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EnableTracing: true,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrClientNil)

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	require.NoError(t, conn.HealthCheck(ctx))

	db := conn.GetClient()
	require.NotNil(t, db)
	require.NoError(t, db.Exec("CREATE TABLE t (id INTEGER)").Error)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Nil(t, conn.GetClient())
	assert.False(t, conn.IsHealthy())
}
