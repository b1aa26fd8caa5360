package connector

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ceyewan/bastion/xerrors"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `mapstructure:"name"`     // 连接器名称 (默认: "default")
	Addr     string `mapstructure:"addr"`     // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选]
	DB       int    `mapstructure:"db"`       // [可选] 数据库编号 (默认: 0)

	PoolSize     int           `mapstructure:"pool_size"`      // 默认 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认 2
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认 3s

	// EnableTracing / EnableMetrics 通过 redisotel 接入全局 OTel Provider
	EnableTracing bool `mapstructure:"enable_tracing"`
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required, is.DialString),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.PoolSize, validation.Min(1)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
	)
	return wrapConfigError(err)
}

// MySQLConfig MySQL 连接配置，DSN 非空时忽略 Host/Port 等字段
type MySQLConfig struct {
	Name string `mapstructure:"name"`
	DSN  string `mapstructure:"dsn"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // 默认 3306
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"` // 默认 utf8mb4

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认 10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认 100
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认 1h

	EnableTracing bool `mapstructure:"enable_tracing"`
}

func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *MySQLConfig) validate() error {
	if c.DSN != "" {
		return nil
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Database, validation.Required),
	)
	return wrapConfigError(err)
}

// SQLiteConfig SQLite 连接配置
//
// Path 为 "file::memory:?cache=shared" 时使用共享内存库，测试中常用。
type SQLiteConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"` // [必填]

	EnableTracing bool `mapstructure:"enable_tracing"`
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

func (c *SQLiteConfig) validate() error {
	return wrapConfigError(validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	))
}

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrap(ErrConfig, err.Error())
}
