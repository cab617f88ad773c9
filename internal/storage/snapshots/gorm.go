package snapshots

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// GormConfig configures a relational backend.
type GormConfig struct {
	Driver          string // sqlite, mysql, postgres
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// GormBackend keeps daily records in a SQL table.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend opens the database and migrates the snapshot table.
func NewGormBackend(cfg GormConfig) (*GormBackend, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&domain.DailySnapshotRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate snapshot table")
	}

	return &GormBackend{db: db}, nil
}

func (g *GormBackend) Upsert(ctx context.Context, record domain.DailySnapshotRecord) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			UpdateAll: true,
		}).
		Create(&record).Error
}

// Recent does not order the query, so the limit keeps the rows in table scan order.
func (g *GormBackend) Recent(ctx context.Context, limit int) ([]domain.DailySnapshotRecord, error) {
	query := g.db.WithContext(ctx)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []domain.DailySnapshotRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create snapshot database dir %s", dir)
	}
	return nil
}
