package telemetry

import (
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BaseLoggerConfig describes the local half of a bridged logger.
type BaseLoggerConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout or stderr
	TimeFormat string
}

// CreateBridgedLoggerFromConfig builds a logger that writes locally per base
// and forwards the same entries to the OTLP log provider.
func CreateBridgedLoggerFromConfig(base *BaseLoggerConfig, lp *LoggerProvider, serviceName string) (*zap.Logger, error) {
	level := parseLevel(base.Level)
	local := zapcore.NewCore(encoderFor(base), writerFor(base.Output), level)

	cores := []zapcore.Core{local}
	if lp.IsEnabled() {
		remote := otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(lp.sdk))
		cores = append(cores, minLevelCore{Core: remote, min: level})
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// minLevelCore drops entries below min; the otelzap core accepts every level.
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c minLevelCore) Enabled(l zapcore.Level) bool {
	return l >= c.min && c.Core.Enabled(l)
}

func (c minLevelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return minLevelCore{Core: c.Core.With(fields), min: c.min}
}

func parseLevel(s string) zapcore.Level {
	var l zapcore.Level
	s = strings.ToLower(s)
	if s == "warning" {
		s = "warn"
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func encoderFor(cfg *BaseLoggerConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.TimeFormat != "" {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(cfg.TimeFormat)
	} else {
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if cfg.Format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func writerFor(output string) zapcore.WriteSyncer {
	if output == "stderr" {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.Lock(os.Stdout)
}
