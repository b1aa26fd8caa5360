// Package idgen 提供 Snowflake 64 位 ID 生成。
//
// ID 布局（从高到低）：1 位符号（恒为 0）| 41 位毫秒时间戳（相对 Epoch）|
// 5 位 datacenterID | 5 位 workerID | 12 位序列号。
//
// 正确性的前提是每个 (workerID, datacenterID) 身份在进程内只有一个生成器实例，
// Registry 负责缓存这些实例：
//
//	reg := idgen.NewRegistry(idgen.WithLogger(logger), idgen.WithMeter(meter))
//	id, err := reg.GeneratorID(3, 1)
//	if errors.Is(err, idgen.ErrClockBackwards) {
//	    // 时钟回拨，不应重试
//	}
//
// 按模块标识查找身份时使用 ModuleResolver，身份依次从本地缓存、Redis、数据库读取：
//
//	store, _ := idgen.NewGormStore(db)
//	resolver := idgen.NewModuleResolver(reg, store, idgen.WithRedisCache(redisConn))
//	id, err := resolver.GenerateForModule(ctx, "order")
package idgen

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ceyewan/bastion/xerrors"
)

// Epoch 集群共享的时间戳起点：2020-01-01T00:00:00Z，Unix 毫秒
const Epoch int64 = 1577836800000

const (
	timestampBits  = 41
	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12

	// MaxWorkerID workerID 上限
	MaxWorkerID int64 = 1<<workerBits - 1
	// MaxDatacenterID datacenterID 上限
	MaxDatacenterID int64 = 1<<datacenterBits - 1
	// MaxSequence 每毫秒序列号上限
	MaxSequence int64 = 1<<sequenceBits - 1

	maxTimestamp int64 = 1<<timestampBits - 1

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// Identity 生成器身份
type Identity struct {
	WorkerID     int64 `json:"worker_id" yaml:"worker_id" mapstructure:"worker_id" msgpack:"w"`
	DatacenterID int64 `json:"datacenter_id" yaml:"datacenter_id" mapstructure:"datacenter_id" msgpack:"d"`
}

// DefaultIdentity GenerateID 与未配置模块使用的身份
var DefaultIdentity = Identity{}

// Validate 校验两个分量都在 [0, 31]
func (id Identity) Validate() error {
	err := validation.ValidateStruct(&id,
		validation.Field(&id.WorkerID, validation.Min(int64(0)), validation.Max(MaxWorkerID)),
		validation.Field(&id.DatacenterID, validation.Min(int64(0)), validation.Max(MaxDatacenterID)),
	)
	if err != nil {
		return xerrors.WithCode(xerrors.Wrapf(ErrInvalidIdentity, "%s: %v", id, err), CodeInvalidIdentity)
	}
	return nil
}

func (id Identity) String() string {
	return fmt.Sprintf("worker=%d,datacenter=%d", id.WorkerID, id.DatacenterID)
}

// Parts ID 拆解结果
type Parts struct {
	Timestamp    time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Decompose 拆解 ID，用于排查问题
func Decompose(id int64) Parts {
	return Parts{
		Timestamp:    time.UnixMilli(id>>timestampShift + Epoch).UTC(),
		DatacenterID: id >> datacenterShift & MaxDatacenterID,
		WorkerID:     id >> workerShift & MaxWorkerID,
		Sequence:     id & MaxSequence,
	}
}
