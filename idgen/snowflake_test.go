package idgen

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/testkit"
	"github.com/ceyewan/bastion/xerrors"
)

// ========================================
// Identity / Decompose
// ========================================

func TestIdentityValidate(t *testing.T) {
	valid := []Identity{{0, 0}, {31, 31}, {5, 17}}
	for _, id := range valid {
		assert.NoError(t, id.Validate(), id.String())
	}

	invalid := []Identity{{-1, 0}, {32, 0}, {0, -1}, {0, 32}}
	for _, id := range invalid {
		err := id.Validate()
		assert.ErrorIs(t, err, ErrInvalidIdentity, id.String())
		assert.True(t, xerrors.IsCode(err, CodeInvalidIdentity))
	}
}

func TestDecompose(t *testing.T) {
	clock := testkit.NewClock()
	sf, err := NewSnowflake(Identity{WorkerID: 7, DatacenterID: 19}, WithClock(clock.Now))
	require.NoError(t, err)

	first, err := sf.NextID()
	require.NoError(t, err)
	second, err := sf.NextID()
	require.NoError(t, err)

	p := Decompose(second)
	assert.Equal(t, clock.Now().UnixMilli(), p.Timestamp.UnixMilli())
	assert.Equal(t, int64(7), p.WorkerID)
	assert.Equal(t, int64(19), p.DatacenterID)
	assert.Equal(t, int64(1), p.Sequence)
	assert.Equal(t, int64(0), Decompose(first).Sequence)
	assert.Greater(t, first, int64(0), "符号位恒为 0")
}

func TestEpoch(t *testing.T) {
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), Epoch)
}

// ========================================
// NextID
// ========================================

func TestNextIDSequenceWithinMillisecond(t *testing.T) {
	clock := testkit.NewClock()
	sf, err := NewSnowflake(Identity{WorkerID: 1}, WithClock(clock.Now))
	require.NoError(t, err)

	var prev int64
	for i := 0; i < 100; i++ {
		id, err := sf.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		assert.Equal(t, int64(i), Decompose(id).Sequence)
		prev = id
	}

	clock.Advance(time.Millisecond)
	id, err := sf.NextID()
	require.NoError(t, err)
	assert.Equal(t, int64(0), Decompose(id).Sequence, "新的毫秒序列号归零")
}

func TestNextIDSequenceOverflowWaitsNextMillisecond(t *testing.T) {
	base := testkit.NewClock().Now()
	var calls atomic.Int64
	// 前 MaxSequence+2 次读时钟停在同一毫秒，之后前进 1ms
	now := func() time.Time {
		if calls.Add(1) <= MaxSequence+2 {
			return base
		}
		return base.Add(time.Millisecond)
	}

	sf, err := NewSnowflake(Identity{WorkerID: 2}, WithClock(now))
	require.NoError(t, err)

	seen := make(map[int64]struct{}, MaxSequence+2)
	for i := int64(0); i <= MaxSequence; i++ {
		id, err := sf.NextID()
		require.NoError(t, err)
		seen[id] = struct{}{}
	}

	id, err := sf.NextID()
	require.NoError(t, err)
	assert.NotContains(t, seen, id)
	p := Decompose(id)
	assert.Equal(t, base.Add(time.Millisecond).UnixMilli(), p.Timestamp.UnixMilli())
	assert.Equal(t, int64(0), p.Sequence)
}

func TestNextIDClockBackwardsFails(t *testing.T) {
	clock := testkit.NewClock()
	meter := testkit.NewMeter(t)
	sf, err := NewSnowflake(Identity{WorkerID: 3}, WithClock(clock.Now), WithMeter(meter))
	require.NoError(t, err)

	_, err = sf.NextID()
	require.NoError(t, err)

	clock.Advance(-5 * time.Millisecond)
	_, err = sf.NextID()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClockBackwards)
	assert.True(t, xerrors.IsCode(err, CodeClockBackwards))

	_, err = sf.NextString()
	assert.ErrorIs(t, err, ErrClockBackwards, "时钟追上之前持续失败")

	clock.Advance(5 * time.Millisecond)
	_, err = sf.NextID()
	assert.NoError(t, err)

	assert.Contains(t, testkit.Scrape(t, meter), MetricClockBackwards)
}

func TestNextIDClockToleranceWaits(t *testing.T) {
	base := testkit.NewClock().Now()
	var calls atomic.Int64
	// 第二次读时钟回拨 2ms，之后恢复
	now := func() time.Time {
		if calls.Add(1) == 2 {
			return base.Add(-2 * time.Millisecond)
		}
		return base.Add(time.Millisecond)
	}

	sf, err := NewSnowflake(Identity{WorkerID: 4}, WithClock(now), WithClockTolerance(10*time.Millisecond))
	require.NoError(t, err)

	first, err := sf.NextID()
	require.NoError(t, err)
	second, err := sf.NextID()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestNextIDBeforeEpoch(t *testing.T) {
	sf, err := NewSnowflake(Identity{}, WithClock(func() time.Time {
		return time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	_, err = sf.NextID()
	assert.ErrorIs(t, err, ErrTimestampOutOfRange)
}

func TestNewSnowflakeInvalidIdentity(t *testing.T) {
	_, err := NewSnowflake(Identity{WorkerID: 32})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestConcurrentUniqueAndOrdered(t *testing.T) {
	sf, err := NewSnowflake(Identity{WorkerID: 9, DatacenterID: 1})
	require.NoError(t, err)

	const (
		workers = 10
		perG    = 1000
	)
	var mu sync.Mutex
	ids := make([]int64, 0, workers*perG)
	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perG)
			for i := 0; i < perG; i++ {
				id, err := sf.NextID()
				if !assert.NoError(t, err) {
					return
				}
				local = append(local, id)
			}
			// 单个 goroutine 内的调用顺序与 ID 大小一致
			assert.True(t, sort.SliceIsSorted(local, func(i, j int) bool { return local[i] < local[j] }))
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perG)
}

func TestNextString(t *testing.T) {
	sf, err := NewSnowflake(Identity{})
	require.NoError(t, err)
	s, err := sf.NextString()
	require.NoError(t, err)
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestUUID(t *testing.T) {
	a, b := UUID(), UUID()
	assert.Len(t, a, 36)
	assert.Equal(t, byte('7'), a[14])
	assert.NotEqual(t, a, b)
}

func BenchmarkNextID(b *testing.B) {
	sf, err := NewSnowflake(Identity{WorkerID: 1})
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = sf.NextID()
	}
}
