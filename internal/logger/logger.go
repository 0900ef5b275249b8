// Package logger provides the structured logger used across the pool,
// its worker goroutines, and the timer fire path.
package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how a Logger is built.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, or a file path
}

// Logger is the structured logging interface used throughout the module.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
}

// zapLogger wraps a zap.SugaredLogger with a carried field set.
type zapLogger struct {
	logger *zap.SugaredLogger
	fields map[string]interface{}
}

// New builds a Logger from cfg. Falls back to sane defaults on an empty cfg.
func New(cfg Config) Logger {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.OutputPath == "" || cfg.OutputPath == "stdout" {
		zapConfig.OutputPaths = []string{"stdout"}
	} else {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	built, err := zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	return &zapLogger{logger: built.Sugar(), fields: make(map[string]interface{})}
}

// Noop returns a Logger that discards everything. Useful as a test default.
func Noop() Logger {
	return &zapLogger{logger: zap.NewNop().Sugar(), fields: make(map[string]interface{})}
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.With(l.flatten()...).Debugw(msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.logger.With(l.flatten()...).Infow(msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.With(l.flatten()...).Warnw(msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.logger.With(l.flatten()...).Errorw(msg, fields...)
}

func (l *zapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.With(l.flatten()...).Fatalw(msg, fields...)
	os.Exit(1)
}

func (l *zapLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &zapLogger{logger: l.logger, fields: merged}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	fields := make(map[string]interface{})
	if v := ctx.Value(contextKeyTenant); v != nil {
		fields["tenant"] = v
	}
	if v := ctx.Value(contextKeyTraceID); v != nil {
		fields["trace_id"] = v
	}
	return l.WithFields(fields)
}

func (l *zapLogger) flatten() []interface{} {
	out := make([]interface{}, 0, len(l.fields)*2)
	for k, v := range l.fields {
		out = append(out, k, v)
	}
	return out
}

type contextKey int

const (
	contextKeyTenant contextKey = iota
	contextKeyTraceID
)
