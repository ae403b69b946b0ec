// Package persistence implements the connector repositories on PostgreSQL via GORM.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aurum/backend/internal/infrastructure/config"
	"github.com/aurum/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const connectTimeout = 10 * time.Second

// Database owns the GORM handle and its pool.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase connects to PostgreSQL, sizes the pool from cfg and verifies
// the connection. GORM logs go through zap at cfg.LogLevel.
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.LogLevel)),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}

	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.sql.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return d, nil
}

func wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

// PingContext reports whether the database is reachable; /health uses it.
func (d *Database) PingContext(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.sql.Close()
}
