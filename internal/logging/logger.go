package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseMu sync.RWMutex
	base   *zap.Logger
)

// Init configures the process-wide base logger. Development mode writes
// human-readable console output; production mode writes JSON.
func Init(level string, development bool) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	baseMu.Lock()
	base = l
	baseMu.Unlock()
	return nil
}

// Sync flushes any buffered log entries of the base logger.
func Sync() {
	baseMu.RLock()
	l := base
	baseMu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func baseLogger() *zap.Logger {
	baseMu.RLock()
	l := base
	baseMu.RUnlock()
	if l != nil {
		return l
	}

	baseMu.Lock()
	defer baseMu.Unlock()
	if base == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	}
	return base
}

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return FromZap(prefix, baseLogger())
}

// FromZap wraps an existing zap logger.
func FromZap(prefix string, l *zap.Logger) *Logger {
	if prefix != "" {
		l = l.Named(prefix)
	}
	return &Logger{
		prefix: prefix,
		sugar:  l.Sugar(),
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return FromZap("", zap.NewNop())
}

// With returns a child logger that always carries the given key-value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		prefix: l.prefix,
		sugar:  l.sugar.With(keysAndValues...),
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Printf satisfies the printf-style logger interfaces of queue libraries.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Sugar exposes the underlying zap logger. Its Debug/Info/Warn/Error/Fatal
// methods satisfy asynq.Logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}
