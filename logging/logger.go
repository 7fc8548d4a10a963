package logging

import (
	"log/slog"
	"time"
)

// LogLevel selects the minimum severity a RuntimeLogger emits.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// slog places its levels four apart, starting at -4 for debug.
func (l LogLevel) toSlog() slog.Level {
	if l < LogLevelDebug || l > LogLevelError {
		return slog.LevelInfo
	}
	return slog.Level(4 * (int(l) - 1))
}

// Logger is the logging contract of pools, the cleanup scheduler and the
// initializer. Arguments after msg are alternating key/value pairs.
// *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Logger = (*slog.Logger)(nil)

// NewSlogAdapter returns logger as a Logger. A nil logger maps to slog.Default().
func NewSlogAdapter(logger *slog.Logger) Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// NewDefaultSlogLogger returns slog.Default() as a Logger.
func NewDefaultSlogLogger() Logger { return slog.Default() }

// AcquireLogger is implemented by loggers with a dedicated record for pool
// acquisitions. Components fall back to plain Debug/Warn records otherwise.
type AcquireLogger interface {
	LogAcquire(poolID, resourceID string, wait time.Duration, err error)
}

// CleanupLogger is implemented by loggers with a dedicated record for cleanup attempts.
type CleanupLogger interface {
	LogCleanup(resourceID string, attempt int, dur time.Duration, err error)
}

// InitializationLogger is implemented by loggers with a dedicated record for
// named initializations.
type InitializationLogger interface {
	LogInitialization(name string, dur time.Duration, err error)
}

// NoOpLogger drops every record. It is the default of every component.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
