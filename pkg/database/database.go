// Package database opens the relational store and provides the generic
// repository the domain packages build on.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memtensor/usergrid/pkg/config"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
)

// Dialector returns the GORM dialector for the configured driver
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported database driver: %s", cfg.Driver))
	}
}

// Open connects to the database, retrying until the server answers a ping
// or the attempts are exhausted.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger interfaces.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var db *gorm.DB
	err = retry.Do(
		func() error {
			conn, err := gorm.Open(dialector, &gorm.Config{
				Logger:         gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
				TranslateError: true,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			})
			if err != nil {
				return err
			}

			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				_ = sqlDB.Close()
				return err
			}

			db = conn
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Warn("Database not reachable, retrying", map[string]interface{}{
					"driver":  cfg.Driver,
					"attempt": n + 1,
					"error":   err.Error(),
				})
			}
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(cfg.Driver, err)
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("Database connected", map[string]interface{}{
			"driver": cfg.Driver,
		})
	}

	return db, nil
}

func configurePool(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return apperrors.NewDatabaseErrorWithCause("failed to access connection pool", err)
	}

	// every connection to an in-memory SQLite database sees its own empty schema
	if isMemorySQLite(cfg) {
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

func isMemorySQLite(cfg config.DatabaseConfig) bool {
	return (cfg.Driver == "sqlite" || cfg.Driver == "") &&
		(strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory"))
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database answers
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
