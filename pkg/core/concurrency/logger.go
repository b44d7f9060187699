package concurrency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger is the leveled logger used by the pool.
// It is kept minimal so callers can adapt whatever logger they already run.
// Implementations must not panic: workers log after recovering their callback.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// slogLogger implements Logger on top of log/slog
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts an *slog.Logger to Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

// NewDefaultLogger writes text records at info level to stderr.
func NewDefaultLogger() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("component", "roundpool"))
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (l *slogLogger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *slogLogger) Infof(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *slogLogger) Warnf(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *slogLogger) Errorf(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}
