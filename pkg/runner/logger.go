package runner

import "log/slog"

// Logger is a simple logging interface that the runner uses.
// Implementations can wrap any logging library (zap, logrus, slog, etc).
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

// NewNoopLogger returns a no-op logger.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}

// slogLogger adapts *slog.Logger to the runner's Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps an slog logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return slogLogger{l: l}
}

func (s slogLogger) Info(msg string, keysAndValues ...interface{}) {
	s.l.Info(msg, keysAndValues...)
}

func (s slogLogger) Error(msg string, keysAndValues ...interface{}) {
	s.l.Error(msg, keysAndValues...)
}

func (s slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.l.Debug(msg, keysAndValues...)
}
