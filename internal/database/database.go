// Package database opens the Postgres connection pool shared by the services'
// storage layers.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, l *log.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         NewGormLogger(l, cfg.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
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

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	l.Info("postgres connected")
	return db, nil
}

// Close closes the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping returns a health check pinging the pool.
func Ping(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// GormLogger routes gorm's logging to logrus. Queries are logged at debug,
// slow queries at warn and failed ones at error. Record-not-found is not an
// error.
type GormLogger struct {
	logger        *log.Logger
	slowThreshold time.Duration
	level         logger.LogLevel
}

// NewGormLogger creates a GormLogger. A zero slowThreshold disables slow-query
// warnings.
func NewGormLogger(l *log.Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{logger: l, slowThreshold: slowThreshold, level: logger.Warn}
}

func (g *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		g.logger.WithContext(ctx).Infof(msg, data...)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		g.logger.WithContext(ctx).Warnf(msg, data...)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		g.logger.WithContext(ctx).Errorf(msg, data...)
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	entry := g.logger.WithContext(ctx).WithFields(log.Fields{
		"elapsed": elapsed.String(),
		"rows":    rows,
		"sql":     sql,
	})
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		entry.WithError(err).Error("query failed")
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		entry.Warn("slow query")
	default:
		entry.Debug("query")
	}
}
