// Package zaplog bridges a zap SugaredLogger into the session Logger
// interface.
package zaplog

import (
	"go.uber.org/zap"
)

// Logger adapts zap to the printf-style Logger the session package expects.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New wraps the given zap logger.
func New(logger *zap.Logger) *Logger {
	return &Logger{sugar: logger.Sugar()}
}

// NewDevelopment builds a development-configured adapter.
func NewDevelopment() (*Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(logger), nil
}

func (l *Logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
