// Package database opens the content database. SQLite is the default; a
// postgres:// URL switches to PostgreSQL through lib/pq.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database at url and applies pool settings
func Open(url string, zlog zerolog.Logger) (*gorm.DB, error) {
	if IsPostgres(url) {
		return openPostgres(url, zlog)
	}
	return openSQLite(url, zlog)
}

// IsPostgres reports whether url points at a PostgreSQL server
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func gormConfig(zlog zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			&gormWriter{log: zlog},
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	}
}

func openPostgres(url string, zlog zerolog.Logger) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig(zlog))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	zlog.Info().Str("driver", "postgres").Msg("Database connected")
	return db, nil
}

func openSQLite(url string, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		busyTimeout = 5000  // 5 seconds
		cacheSize   = 10000 // 10MB
	)

	db, err := gorm.Open(sqlite.Open(url), gormConfig(zlog))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// In-memory databases are per-connection
	if strings.Contains(url, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(8)
		sqlDB.SetMaxIdleConns(4)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	zlog.Info().Str("driver", "sqlite").Str("path", url).Msg("Database connected")
	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's logger output through zerolog
type gormWriter struct {
	log zerolog.Logger
}

func (w *gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}
