// Package logger is a thin wrapper around zap's sugared logger so the rest
// of the codebase logs through one injected handle instead of a global.
package logger

import (
	"go.uber.org/zap"
)

type Logger struct {
	s *zap.SugaredLogger
}

// New builds a production JSON logger, or a human-readable development
// logger when debug is true.
func New(debug bool) (*Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// With returns a child logger with the given key-value pairs attached to
// every entry.
func (l *Logger) With(kvs ...any) *Logger {
	return &Logger{s: l.s.With(kvs...)}
}

func (l *Logger) Debug(msg string, kvs ...any) { l.s.Debugw(msg, kvs...) }
func (l *Logger) Info(msg string, kvs ...any)  { l.s.Infow(msg, kvs...) }
func (l *Logger) Warn(msg string, kvs ...any)  { l.s.Warnw(msg, kvs...) }
func (l *Logger) Error(msg string, kvs ...any) { l.s.Errorw(msg, kvs...) }
func (l *Logger) Fatal(msg string, kvs ...any) { l.s.Fatalw(msg, kvs...) }

// Sync flushes buffered entries. Safe to call on shutdown.
func (l *Logger) Sync() {
	_ = l.s.Sync()
}
