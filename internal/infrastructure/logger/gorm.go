package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output to zap. Statements log at debug, slow ones at
// warn and failures at error, tagged with the request and trace ids.
type GormLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger creates a GormLogger with a 200ms slow threshold.
func NewGormLogger(l *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{log: l.Named("gorm"), level: level, slowThreshold: 200 * time.Millisecond}
}

// WithSlowThreshold returns a copy with a different slow threshold; zero disables it.
func (g *GormLogger) WithSlowThreshold(d time.Duration) *GormLogger {
	cp := *g
	cp.slowThreshold = d
	return &cp
}

// LogMode implements gormlogger.Interface.
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

// Info implements gormlogger.Interface.
func (g *GormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.log.Sugar().Infof(msg, args...)
	}
}

// Warn implements gormlogger.Interface.
func (g *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Sugar().Warnf(msg, args...)
	}
}

// Error implements gormlogger.Interface.
func (g *GormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.log.Sugar().Errorf(msg, args...)
	}
}

// Trace implements gormlogger.Interface. Record-not-found is not an error here;
// repositories translate it into a domain NOT_FOUND.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)

	fields := func() []zap.Field {
		sql, rows := fc()
		f := append([]zap.Field{
			zap.Duration("elapsed", took),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		}, TraceFields(ctx)...)
		if id := RequestID(ctx); id != "" {
			f = append(f, zap.String("request_id", id))
		}
		return f
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.log.Error("SQL error", append(fields(), zap.Error(err))...)
	case g.slowThreshold > 0 && took > g.slowThreshold && g.level >= gormlogger.Warn:
		g.log.Warn("Slow SQL", append(fields(), zap.Duration("threshold", g.slowThreshold))...)
	case g.level >= gormlogger.Info:
		g.log.Debug("SQL", fields()...)
	}
}

// MapGormLogLevel converts a config string; debug maps to Info, unknown to Warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
