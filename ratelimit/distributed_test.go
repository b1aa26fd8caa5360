package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/testkit"
)

func TestNewDistributed_Validation(t *testing.T) {
	_, err := NewDistributed(nil, nil)
	assert.ErrorIs(t, err, ErrConnectorNil)
}

func TestDistributed_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	clock := testkit.NewClock()
	_, conn := testkit.NewRedis(t)
	cfg := &DistributedConfig{Prefix: "shared:"}

	a, err := NewDistributed(conn, cfg, WithClock(clock.Now))
	require.NoError(t, err)
	b, err := NewDistributed(conn, cfg, WithClock(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, 3, acquireN(ctx, a, ScopeUser, "u1", 3, 2)+acquireN(ctx, b, ScopeUser, "u1", 3, 2))
	assert.Equal(t, -1, a.Len(ScopeUser))
	assert.Equal(t, modeDistributed, a.Mode())
}

func TestDistributed_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, conn := testkit.NewRedis(t)

	r, err := NewDistributed(conn, nil, WithClock(testkit.NewClock().Now))
	require.NoError(t, err)
	require.True(t, r.TryAcquireForIP(ctx, "10.0.0.1", 5))

	key := "bastion:ratelimit:ip:10.0.0.1"
	require.True(t, mr.Exists(key))
	assert.Equal(t, "5", mr.HGet(key, "rate"))
	assert.Equal(t, "5", mr.HGet(key, "burst"))
	assert.Equal(t, time.Duration(0), mr.TTL(key), "默认不过期")
}

func TestDistributed_IdleTTL(t *testing.T) {
	ctx := context.Background()
	mr, conn := testkit.NewRedis(t)

	r, err := NewDistributed(conn, &DistributedConfig{Prefix: "ttl:", IdleTTL: time.Minute})
	require.NoError(t, err)
	require.True(t, r.TryAcquireForUser(ctx, "u1", 1))
	assert.Equal(t, time.Minute, mr.TTL("ttl:user:u1"))

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists("ttl:user:u1"))
}

func TestDistributed_ClearOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	mr, conn := testkit.NewRedis(t)
	require.NoError(t, mr.Set("unrelated", "v"))

	r, err := NewDistributed(conn, &DistributedConfig{Prefix: "mine:"})
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		r.TryAcquireForUser(ctx, k, 1)
		r.TryAcquireForAPI(ctx, k, 1)
	}

	require.NoError(t, r.ClearLimiters(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestDistributed_FailOpen(t *testing.T) {
	ctx := context.Background()
	mr, conn := testkit.NewRedis(t)
	meter := testkit.NewMeter(t)

	r, err := NewDistributed(conn, nil, WithMeter(meter))
	require.NoError(t, err)
	require.True(t, r.TryAcquireForUser(ctx, "u1", 1))
	require.False(t, r.TryAcquireForUser(ctx, "u1", 1))

	mr.Close()
	assert.True(t, r.TryAcquireForUser(ctx, "u1", 1), "Redis 不可用时放行")
	assert.Error(t, r.ClearLimiters(ctx))
	assert.Contains(t, testkit.Scrape(t, meter), MetricErrors)
}
