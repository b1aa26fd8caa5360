package idgen

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/xerrors"
)

// Snowflake 单个身份的 ID 生成器
//
// 同一身份在进程内只能有一个实例：两个实例各自维护序列号，
// 会在同一毫秒内产出相同的 ID。通过 Registry 获取实例可以保证这一点。
type Snowflake struct {
	id Identity

	mu            sync.Mutex
	lastTimestamp int64 // Unix 毫秒
	sequence      int64

	now       func() time.Time
	tolerance time.Duration
	logger    clog.Logger
	inst      *instruments
}

// NewSnowflake 创建独立的生成器
//
// 多数场景应使用 Registry.Generator，它为每个身份缓存唯一的实例。
//
//	sf, _ := idgen.NewSnowflake(idgen.Identity{WorkerID: 1, DatacenterID: 2})
//	id, err := sf.NextID()
func NewSnowflake(id Identity, opts ...Option) (*Snowflake, error) {
	o := applyOptions(opts)
	return newSnowflake(id, o, newInstruments(o.meter, o.logger))
}

func newSnowflake(id Identity, o *options, inst *instruments) (*Snowflake, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &Snowflake{
		id:        id,
		now:       o.now,
		tolerance: o.tolerance,
		logger:    o.logger.With(clog.Int64("worker_id", id.WorkerID), clog.Int64("datacenter_id", id.DatacenterID)),
		inst:      inst,
	}, nil
}

// Identity 生成器身份
func (s *Snowflake) Identity() Identity {
	return s.id
}

// NextID 生成下一个 ID
//
// 同一实例返回的 ID 严格递增。时钟回拨超过容忍值时返回 ErrClockBackwards，
// 序列号在同一毫秒内耗尽时自旋等待下一毫秒。
func (s *Snowflake) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.millis()
	if now < s.lastTimestamp {
		drift := time.Duration(s.lastTimestamp-now) * time.Millisecond
		if drift <= s.tolerance {
			time.Sleep(drift)
			now = s.millis()
		}
		if now < s.lastTimestamp {
			s.inst.backwards.Inc(context.Background())
			s.logger.Error("clock moved backwards, refusing to generate id",
				clog.Int64("last_timestamp", s.lastTimestamp),
				clog.Int64("now", now))
			return 0, xerrors.WithCode(
				xerrors.Wrapf(ErrClockBackwards, "refusing to generate id for %dms", s.lastTimestamp-now),
				CodeClockBackwards)
		}
	}

	elapsed := now - Epoch
	if elapsed < 0 || elapsed > maxTimestamp {
		return 0, xerrors.Wrapf(ErrTimestampOutOfRange, "%dms since epoch", elapsed)
	}

	if now == s.lastTimestamp {
		s.sequence = (s.sequence + 1) & MaxSequence
		if s.sequence == 0 {
			now = s.waitNextMillis(s.lastTimestamp)
			elapsed = now - Epoch
		}
	} else {
		s.sequence = 0
	}
	s.lastTimestamp = now

	s.inst.recordGenerated(context.Background(), s.id)
	return elapsed<<timestampShift |
		s.id.DatacenterID<<datacenterShift |
		s.id.WorkerID<<workerShift |
		s.sequence, nil
}

// NextString 以十进制字符串返回下一个 ID
func (s *Snowflake) NextString() (string, error) {
	id, err := s.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Snowflake) millis() int64 {
	return s.now().UnixMilli()
}

func (s *Snowflake) waitNextMillis(last int64) int64 {
	now := s.millis()
	for now <= last {
		time.Sleep(100 * time.Microsecond)
		now = s.millis()
	}
	return now
}
