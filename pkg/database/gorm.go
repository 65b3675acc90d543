package database

import (
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig sizes the connection pool. Every active run writes events and
// checkpoints concurrently, so MaxOpen should stay above
// RESEARCH_MAX_CONCURRENT_RUNS * RESEARCH_PARALLELISM.
type PoolConfig struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxIdle: 10, MaxOpen: 50, MaxLifetime: time.Hour}
}

// newLogger reads DB_LOG_LEVEL (silent, error, warn, info). Checkpoint
// updates are frequent, so the default only reports slow queries and errors.
func newLogger() logger.Interface {
	level := logger.Warn
	switch strings.ToLower(os.Getenv("DB_LOG_LEVEL")) {
	case "silent":
		level = logger.Silent
	case "error":
		level = logger.Error
	case "info":
		level = logger.Info
	}

	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true, // FindById returns nil for missing runs
			ParameterizedQueries:      true, // queries and page excerpts stay out of the log
			Colorful:                  false,
		},
	)
}

func NewGormDBFromDSN(dsn string) (*gorm.DB, error) {
	return NewGormDBWithPool(dsn, DefaultPoolConfig())
}

func NewGormDBWithPool(dsn string, pool PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger(),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)

	return db, nil
}
