package idgen

import "github.com/ceyewan/bastion/xerrors"

var (
	// ErrClockBackwards 系统时钟回拨，本次生成失败且不应重试
	ErrClockBackwards = xerrors.New("idgen: clock moved backwards")

	// ErrTimestampOutOfRange 当前时间早于纪元或超出 41 位时间戳范围
	ErrTimestampOutOfRange = xerrors.New("idgen: timestamp out of range")

	// ErrInvalidIdentity workerID 或 datacenterID 不在 [0, 31]
	ErrInvalidIdentity = xerrors.New("idgen: invalid identity")

	// ErrModuleKeyEmpty 模块标识为空
	ErrModuleKeyEmpty = xerrors.New("idgen: module key is empty")

	// ErrStoreNil 未提供身份存储
	ErrStoreNil = xerrors.New("idgen: identity store is nil")

	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("idgen: connector is nil")

	// ErrWorkerIDExhausted 数据中心内的 WorkerID 已全部被占用
	ErrWorkerIDExhausted = xerrors.New("idgen: no available worker id")

	// ErrLeaseLost WorkerID 租约已被他人占用或过期
	ErrLeaseLost = xerrors.New("idgen: worker id lease lost")
)

// 错误码
const (
	CodeClockBackwards  = "CLOCK_BACKWARDS"
	CodeInvalidIdentity = "INVALID_IDENTITY"
)
