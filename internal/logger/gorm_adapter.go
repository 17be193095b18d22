package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes gorm logging through Logger. Every statement is
// logged at trace, slow statements at warn, and failures at warn. Record
// not found is expected by callers and never logged as a failure.
type GormLoggerAdapter struct {
	logger        Logger
	slowThreshold time.Duration
	silent        bool
}

// NewGormLoggerAdapter creates a gorm logger. A nil logger discards output.
func NewGormLoggerAdapter(logger Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	return &GormLoggerAdapter{logger: logger, slowThreshold: slowThreshold, silent: logger == nil}
}

func (a *GormLoggerAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *a
	cp.silent = a.logger == nil || level == gormlogger.Silent
	return &cp
}

func (a *GormLoggerAdapter) Info(ctx context.Context, msg string, data ...any) {
	if !a.silent {
		a.logger.WithContext(ctx).Debug(fmt.Sprintf(msg, data...))
	}
}

func (a *GormLoggerAdapter) Warn(ctx context.Context, msg string, data ...any) {
	if !a.silent {
		a.logger.WithContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (a *GormLoggerAdapter) Error(ctx context.Context, msg string, data ...any) {
	if !a.silent {
		a.logger.WithContext(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (a *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if a.silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	log := a.logger.WithContext(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("query error",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Error(err))
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		log.Warn("slow query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Duration("threshold", a.slowThreshold))
	default:
		log.Trace("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()))
	}
}
