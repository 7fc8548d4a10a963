package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level LogLevel
	// Format is "json" (default) or "text".
	Format      string
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a JSON, info level configuration writing to stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LogLevelInfo,
		Format:      "json",
		Output:      os.Stdout,
		AddSource:   true,
		CustomAttrs: map[string]any{},
	}
}

// RuntimeLogger is a slog backed Logger carrying component, pool and custom
// attributes. The With* methods return derived loggers and leave the
// receiver untouched. It also records acquisitions, cleanups and
// initializations in a fixed shape.
type RuntimeLogger struct {
	logger *slog.Logger
}

var (
	_ Logger               = (*RuntimeLogger)(nil)
	_ AcquireLogger        = (*RuntimeLogger)(nil)
	_ CleanupLogger        = (*RuntimeLogger)(nil)
	_ InitializationLogger = (*RuntimeLogger)(nil)
)

// NewLogger builds a RuntimeLogger from cfg, or from DefaultLoggerConfig when cfg is nil.
func NewLogger(cfg *LoggerConfig) *RuntimeLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{Level: cfg.Level.toSlog(), AddSource: cfg.AddSource}
	var h slog.Handler
	switch cfg.Format {
	case "text":
		h = slog.NewTextHandler(out, hopts)
	default:
		h = slog.NewJSONHandler(out, hopts)
	}

	attrs := make([]any, 0, 2+2*len(cfg.CustomAttrs))
	if cfg.Component != "" {
		attrs = append(attrs, "component", cfg.Component)
	}
	for k, v := range cfg.CustomAttrs {
		attrs = append(attrs, k, v)
	}
	return &RuntimeLogger{logger: slog.New(h).With(attrs...)}
}

// NewSlogLogger is shorthand for NewLogger with the given level, format and source flag.
func NewSlogLogger(level LogLevel, format string, addSource bool) *RuntimeLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.AddSource = addSource
	if format != "" {
		cfg.Format = format
	}
	return NewLogger(cfg)
}

// WithContext returns a logger that attaches key=value to every record.
func (l *RuntimeLogger) WithContext(key string, value any) *RuntimeLogger {
	return &RuntimeLogger{logger: l.logger.With(key, value)}
}

// WithComponent returns a logger tagged with a component name (pool, cleanup, initializer).
func (l *RuntimeLogger) WithComponent(c string) *RuntimeLogger {
	return &RuntimeLogger{logger: l.logger.With("component", c)}
}

// WithPool returns a logger tagged with a pool id.
func (l *RuntimeLogger) WithPool(poolID string) *RuntimeLogger {
	return &RuntimeLogger{logger: l.logger.With("pool_id", poolID)}
}

// Slog exposes the underlying slog.Logger.
func (l *RuntimeLogger) Slog() *slog.Logger { return l.logger }

func (l *RuntimeLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *RuntimeLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *RuntimeLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *RuntimeLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// log reports the caller of the exported method as the record source.
func (l *RuntimeLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

// ErrorWithStack logs err at error level together with the current goroutine stack.
func (l *RuntimeLogger) ErrorWithStack(err error, msg string, args ...any) {
	args = append(args,
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
		"stack_trace", string(debug.Stack()),
	)
	l.log(slog.LevelError, msg, args...)
}

// LogAcquire records the outcome of a pool acquisition.
func (l *RuntimeLogger) LogAcquire(poolID, resourceID string, wait time.Duration, err error) {
	if err != nil {
		l.Warn("Resource acquisition failed", "pool_id", poolID, "resource_id", resourceID, "wait", wait, "success", false, "error", err.Error())
		return
	}
	l.Debug("Resource acquired", "pool_id", poolID, "resource_id", resourceID, "wait", wait, "success", true)
}

// LogCleanup records one cleanup attempt.
func (l *RuntimeLogger) LogCleanup(resourceID string, attempt int, dur time.Duration, err error) {
	if err != nil {
		l.Error("Cleanup failed", "resource_id", resourceID, "attempt", attempt, "duration", dur, "success", false, "error", err.Error())
		return
	}
	l.Info("Cleanup completed", "resource_id", resourceID, "attempt", attempt, "duration", dur, "success", true)
}

// LogInitialization records the outcome of a named initialization.
func (l *RuntimeLogger) LogInitialization(name string, dur time.Duration, err error) {
	if err != nil {
		l.Error("Initialization failed", "resource", name, "duration", dur, "success", false, "error", err.Error())
		return
	}
	l.Info("Initialization completed", "resource", name, "duration", dur, "success", true)
}

// StartTimer starts timing op; the returned func logs the elapsed time.
func (l *RuntimeLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() {
		l.Info("Operation completed", "operation", op, "duration", time.Since(start))
	}
}

// LogPerformance logs dur and every entry of metrics prefixed with "metric_".
func (l *RuntimeLogger) LogPerformance(op string, dur time.Duration, metrics map[string]any) {
	args := []any{"operation", op, "duration", dur}
	for k, v := range metrics {
		args = append(args, "metric_"+k, v)
	}
	l.Info("Performance metrics", args...)
}
