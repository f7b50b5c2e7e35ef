package docdb

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold matches the 200ms cutoff Connect's doc comment
// promises: any traced statement slower than this logs as a warning when
// the configured level is Warn or Info.
const slowQueryThreshold = 200 * time.Millisecond

// gormHclogAdapter routes gorm's query/trace logging through an hclog.Logger,
// adapted from the teacher's database-layer logging so gorm output matches
// every other component's structured log lines instead of gorm's own
// stdlib-log format.
type gormHclogAdapter struct {
	log   hclog.Logger
	level gormlogger.LogLevel
}

func newGormHclogAdapter(log hclog.Logger, level gormlogger.LogLevel) *gormHclogAdapter {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &gormHclogAdapter{log: log.Named("gorm"), level: level}
}

func (a *gormHclogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormHclogAdapter{log: a.log, level: level}
}

func (a *gormHclogAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Info {
		a.log.Info(msg, "args", args)
	}
}

func (a *gormHclogAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Warn {
		a.log.Warn(msg, "args", args)
	}
}

func (a *gormHclogAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Error {
		a.log.Error(msg, "args", args)
	}
}

func (a *gormHclogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && a.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		a.log.Error("query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case elapsed > slowQueryThreshold && a.level >= gormlogger.Warn:
		a.log.Warn("slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case a.level >= gormlogger.Info:
		a.log.Debug("query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
