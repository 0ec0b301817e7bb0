package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/paytrack/pkg/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger routes GORM's query trace into the service logger. Only failed
// and slow statements are reported; missing rows are an expected mirror miss.
type gormLogger struct {
	logg  *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(logg *logger.Logger) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg.Component("db"), level: gormlogger.Warn, slow: slowQueryThreshold}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, _ ...any) {
	if g.level >= gormlogger.Info {
		g.logg.Info(ctx, msg)
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, _ ...any) {
	if g.level >= gormlogger.Warn {
		g.logg.Warn(ctx, msg)
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, _ ...any) {
	if g.level >= gormlogger.Error {
		g.logg.Error(ctx, msg, nil)
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed > g.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	ctx = g.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	switch {
	case failed && g.level >= gormlogger.Error:
		g.logg.Error(ctx, "db.query.failed", err)
	case slow && g.level >= gormlogger.Warn:
		g.logg.Warn(ctx, "db.query.slow")
	}
}
