package pstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wkmp/wkmp-ap/internal/logging"
)

// slogGormLogger adapts *slog.Logger to gorm's logger.Interface, grounded
// on internal/logger/gorm_adapter.go: normal queries at TRACE, slow
// queries and query errors at WARN, GORM's own Info/Warn/Error at
// DEBUG/WARN/ERROR respectively.
type slogGormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
	level         gormlogger.LogLevel
}

func newGormLogger(logger *slog.Logger, slowThreshold time.Duration, level gormlogger.LogLevel) *slogGormLogger {
	return &slogGormLogger{logger: logger, slowThreshold: slowThreshold, level: level}
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cloned := *l
	cloned.level = level
	return &cloned
}

func (l *slogGormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level < gormlogger.Info {
		return
	}
	l.logger.Debug(msg, "args", data)
}

func (l *slogGormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level < gormlogger.Warn {
		return
	}
	l.logger.Warn(msg, "args", data)
}

func (l *slogGormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level < gormlogger.Error {
		return
	}
	l.logger.Error(msg, "args", data)
}

func (l *slogGormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.Warn("query error", "sql", sql, "rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(), "error", err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.logger.Warn("slow query", "sql", sql, "rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(), "threshold_ms", l.slowThreshold.Milliseconds())
	case l.level >= gormlogger.Info:
		l.logger.Log(context.Background(), logging.LevelTrace, "sql query",
			"sql", sql, "rows_affected", rows, "duration_ms", elapsed.Milliseconds())
	}
}
