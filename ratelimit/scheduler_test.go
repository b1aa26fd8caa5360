package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/testkit"
)

func TestNewResetScheduler(t *testing.T) {
	r := newStandaloneRegistry(t, testkit.NewClock())

	_, err := NewResetScheduler(r, "not a cron", nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	c, err := NewResetScheduler(r, "0 0 4 * * *", testkit.NewLogger())
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
}

func TestResetSchedulerClears(t *testing.T) {
	ctx := context.Background()
	r := NewStandalone(nil, WithLogger(testkit.NewLogger()))
	r.TryAcquireForUser(ctx, "u1", 1)
	require.Equal(t, 1, r.Len(ScopeUser))

	c, err := NewResetScheduler(r, "@every 1s", testkit.NewLogger())
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return r.Len(ScopeUser) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]any{"entry", 1, 42, "skipped", "dangling"})
	require.Len(t, fields, 1)
	assert.Equal(t, "entry", fields[0].Key)
}
