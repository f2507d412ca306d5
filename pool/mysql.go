package pool

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// DefaultMySQLUsageTables maps resource kinds to the tables counted for them.
var DefaultMySQLUsageTables = map[tenants.ResourceKind]string{
	tenants.ResourceUsers:     "users",
	tenants.ResourceVoters:    "voters",
	tenants.ResourceElections: "elections",
}

const mysqlDataSizeQuery = "SELECT COALESCE(SUM(data_length + index_length), 0) DIV 1048576 FROM information_schema.tables WHERE table_schema = DATABASE()"

// GormConnector opens a gorm handle on a MySQL tenant database.
type GormConnector struct {
	MaxConns    int
	LogLevel    logger.LogLevel
	UsageTables map[tenants.ResourceKind]string
}

var _ Connector = (*GormConnector)(nil)

func (c *GormConnector) Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	level := c.LogLevel
	if level == 0 {
		level = logger.Silent
	}
	db, err := gorm.Open(mysql.Open(conn.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if c.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxConns)
		sqlDB.SetMaxIdleConns(c.MaxConns)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	tables := c.UsageTables
	if tables == nil {
		tables = DefaultMySQLUsageTables
	}
	return &GormStore{db: db, tables: tables}, nil
}

// GormStore is a tenant Store backed by gorm over MySQL.
type GormStore struct {
	db     *gorm.DB
	tables map[tenants.ResourceKind]string
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) CountUsage(ctx context.Context, kind tenants.ResourceKind) (int64, error) {
	var n int64
	if kind == tenants.ResourceDataMB {
		if err := s.db.WithContext(ctx).Raw(mysqlDataSizeQuery).Scan(&n).Error; err != nil {
			return 0, fmt.Errorf("count %s: %w", kind, err)
		}
		return n, nil
	}
	table, ok := s.tables[kind]
	if !ok {
		return 0, errors.Wrapf(errors.ErrUnsupported, "usage of %s is not stored in the tenant database", kind)
	}
	if err := s.db.WithContext(ctx).Table(table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
