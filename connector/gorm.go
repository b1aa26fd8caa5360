package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/xerrors"
)

// gormConnector MySQL 与 SQLite 共用的 GORM 连接器，差异只在 Dialector 与连接池参数
type gormConnector struct {
	name      string
	kind      string
	dialector func() gorm.Dialector
	tracing   bool
	pool      func(db *gorm.DB) error

	mu      sync.RWMutex
	db      *gorm.DB
	logger  clog.Logger
	healthy atomic.Bool
}

// NewMySQL 创建 MySQL 连接器，实际连接在 Connect 时建立
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "mysql config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset)
	}

	o := applyOptions(opts)
	return &gormConnector{
		name:      cfg.Name,
		kind:      "mysql",
		dialector: func() gorm.Dialector { return mysql.Open(dsn) },
		tracing:   cfg.EnableTracing,
		pool: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			return nil
		},
		logger: o.logger.With(clog.String("connector", "mysql"), clog.String("name", cfg.Name)),
	}, nil
}

// NewSQLite 创建 SQLite 连接器，实际连接在 Connect 时建立
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &gormConnector{
		name:      cfg.Name,
		kind:      "sqlite",
		dialector: func() gorm.Dialector { return sqlite.Open(cfg.Path) },
		tracing:   cfg.EnableTracing,
		pool: func(db *gorm.DB) error {
			// SQLite 单写者，限制为一个连接避免 database is locked
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxOpenConns(1)
			return nil
		},
		logger: o.logger.With(clog.String("connector", "sqlite"), clog.String("name", cfg.Name)),
	}, nil
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := gorm.Open(c.dialector(), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		c.logger.Error("failed to open database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	if c.tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return xerrors.Wrapf(err, "%s connector[%s]: install tracing plugin", c.kind, c.name)
		}
	}

	if err := c.pool(db); err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping: %v", c.kind, c.name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected to database")
	return nil
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database", clog.Error(err))
		return err
	}
	c.logger.Info("database connection closed")
	return nil
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.kind, c.name)
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("database health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *gormConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *gormConnector) Name() string {
	return c.name
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
