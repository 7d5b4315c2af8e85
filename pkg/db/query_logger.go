package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/partsdepot/cart-service/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryLogger routes GORM diagnostics into the service logger. Only failed
// statements and statements slower than the threshold are reported; record
// not found is a normal lookup outcome and stays quiet.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	level := gormlogger.Warn
	if logg == nil {
		level = gormlogger.Silent
	}
	return &queryLogger{logg: logg, slow: slow, level: level}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, "gorm error", fmt.Errorf(msg, args...))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow

	switch {
	case failed && q.level >= gormlogger.Error:
		q.logg.Error(q.fields(ctx, elapsed, fc), "query failed", err)
	case slow && q.level >= gormlogger.Warn:
		q.logg.Warn(q.fields(ctx, elapsed, fc), "slow query")
	case q.level >= gormlogger.Info:
		q.logg.Debug(q.fields(ctx, elapsed, fc), "query")
	}
}

func (q *queryLogger) fields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) context.Context {
	sql, rows := fc()
	return q.logg.WithFields(ctx, map[string]any{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}
