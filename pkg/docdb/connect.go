package docdb

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnConfig configures the Postgres connection pool, adapted from the
// teacher's database.Config.
type ConnConfig struct {
	// RawDSN, when non-empty, is used verbatim instead of assembling a DSN
	// from the fields below (the loader's config surface carries one
	// already-assembled libpq DSN rather than discrete host/port fields).
	RawDSN string

	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the libpq connection string for cfg.
func (cfg ConnConfig) DSN() string {
	if cfg.RawDSN != "" {
		return cfg.RawDSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

// Connect opens a *gorm.DB against cfg, logging through hclog (adapted
// from the teacher's gormHclogAdapter: slow queries over 200ms are logged
// as warnings).
func Connect(cfg ConnConfig, log hclog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: newGormHclogAdapter(log, gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return db, nil
}

// PoolStats mirrors database/sql.DBStats for logging/liveness checks.
type PoolStats struct {
	OpenConnections int
	InUse           int
	Idle            int
}

// GetPoolStats reports the current connection-pool occupancy.
func GetPoolStats(db *gorm.DB) (PoolStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return PoolStats{}, err
	}
	s := sqlDB.Stats()
	return PoolStats{OpenConnections: s.OpenConnections, InUse: s.InUse, Idle: s.Idle}, nil
}
