package idgen

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/bastion/xerrors"
)

// IdentityStore 模块身份的持久化来源
type IdentityStore interface {
	// Lookup 返回模块启用中的身份；不存在或已停用时 found 为 false
	Lookup(ctx context.Context, moduleKey string) (id Identity, found bool, err error)
}

// 模块状态
const (
	StatusNormal   int8 = 1
	StatusDisabled int8 = 2
)

// IdentityRecord id_generator_info 表的一行
type IdentityRecord struct {
	ID           uint      `gorm:"primaryKey"`
	ModuleKey    string    `gorm:"column:module_key;size:128;not null;uniqueIndex"`
	WorkerID     int64     `gorm:"column:worker_id;not null"`
	DatacenterID int64     `gorm:"column:datacenter_id;not null"`
	Status       int8      `gorm:"column:status;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName 表名
func (IdentityRecord) TableName() string {
	return "id_generator_info"
}

// GormStore 基于 gorm 的身份存储，支持 MySQL 与 SQLite
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储并迁移表结构
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, ErrStoreNil
	}
	if err := db.AutoMigrate(&IdentityRecord{}); err != nil {
		return nil, xerrors.Wrap(err, "migrate id_generator_info")
	}
	return &GormStore{db: db}, nil
}

// Lookup 实现 IdentityStore
func (s *GormStore) Lookup(ctx context.Context, moduleKey string) (Identity, bool, error) {
	var rec IdentityRecord
	err := s.db.WithContext(ctx).
		Where("module_key = ? AND status = ?", moduleKey, StatusNormal).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, xerrors.Wrapf(err, "lookup module %q", moduleKey)
	}
	return Identity{WorkerID: rec.WorkerID, DatacenterID: rec.DatacenterID}, true, nil
}

// Register 为模块登记身份，已存在时覆盖并重新启用
func (s *GormStore) Register(ctx context.Context, moduleKey string, id Identity) error {
	if moduleKey == "" {
		return ErrModuleKeyEmpty
	}
	if err := id.Validate(); err != nil {
		return err
	}
	rec := IdentityRecord{
		ModuleKey:    moduleKey,
		WorkerID:     id.WorkerID,
		DatacenterID: id.DatacenterID,
		Status:       StatusNormal,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "module_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"worker_id", "datacenter_id", "status", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return xerrors.Wrapf(err, "register module %q", moduleKey)
	}
	return nil
}

// Disable 停用模块，之后该模块回退到默认身份
func (s *GormStore) Disable(ctx context.Context, moduleKey string) error {
	res := s.db.WithContext(ctx).Model(&IdentityRecord{}).
		Where("module_key = ?", moduleKey).
		Update("status", StatusDisabled)
	if res.Error != nil {
		return xerrors.Wrapf(res.Error, "disable module %q", moduleKey)
	}
	if res.RowsAffected == 0 {
		return xerrors.Wrapf(xerrors.ErrNotFound, "module %q", moduleKey)
	}
	return nil
}
