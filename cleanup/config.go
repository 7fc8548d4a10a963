package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// Config defines the scheduler knobs.
type Config struct {
	// MaxConcurrentCleanups bounds the number of cleanups running at once.
	MaxConcurrentCleanups int

	// CheckInterval is the longest the loop sleeps between passes.
	CheckInterval time.Duration

	// DefaultMaxRetries applies when Schedule is not given WithMaxRetries.
	DefaultMaxRetries int

	// RetryDelay is the pause before a failed cleanup is attempted again.
	RetryDelay time.Duration
}

// DefaultConfig provides the default scheduler configuration.
var DefaultConfig = Config{
	MaxConcurrentCleanups: 10,
	CheckInterval:         time.Second,
	DefaultMaxRetries:     3,
	RetryDelay:            5 * time.Second,
}

// Validate reports impossible values.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentCleanups <= 0:
		return fmt.Errorf("max concurrent cleanups must be positive, got %d: %w", c.MaxConcurrentCleanups, core.ErrInvalidConfig)
	case c.CheckInterval <= 0:
		return fmt.Errorf("check interval must be positive, got %s: %w", c.CheckInterval, core.ErrInvalidConfig)
	case c.DefaultMaxRetries < 0:
		return fmt.Errorf("default max retries must not be negative, got %d: %w", c.DefaultMaxRetries, core.ErrInvalidConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry delay must not be negative, got %s: %w", c.RetryDelay, core.ErrInvalidConfig)
	}
	return nil
}

// Options configures a Scheduler.
type Options struct {
	// Config defaults to DefaultConfig.
	Config Config

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// ScheduleOptions configures a single Schedule call.
type ScheduleOptions struct {
	// CleanupFunc replaces the Cleanup/Close/Shutdown/Stop probes.
	CleanupFunc core.DisposeFunc

	// Delay is added to the current time to compute the due time.
	Delay time.Duration

	// Priority breaks ties between equal due times; higher runs first.
	Priority int

	// MaxRetries overrides Config.DefaultMaxRetries when not negative.
	MaxRetries int

	// ResourceID keys the entry for cancellation and deduplication. Generated when empty.
	ResourceID string

	// Liveness drops the entry when the flag is dead at execution time.
	Liveness *core.Liveness
}

// WithCleanupFunc sets a custom cleanup function.
func WithCleanupFunc(fn core.DisposeFunc) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.CleanupFunc = fn }
}

// WithCleanupContext sets a custom cleanup function that ignores the resource argument.
func WithCleanupContext(fn func(ctx context.Context) error) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) {
		o.CleanupFunc = func(ctx context.Context, _ any) error { return fn(ctx) }
	}
}

// WithDelay sets the delay before the cleanup becomes due.
func WithDelay(d time.Duration) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.Delay = d }
}

// WithPriority sets the tie-break priority.
func WithPriority(p int) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.Priority = p }
}

// WithMaxRetries sets the retry budget of the entry.
func WithMaxRetries(n int) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.MaxRetries = n }
}

// WithResourceID sets the entry key.
func WithResourceID(id string) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.ResourceID = id }
}

// WithLiveness gates the entry on a liveness flag.
func WithLiveness(l *core.Liveness) func(o *ScheduleOptions) {
	return func(o *ScheduleOptions) { o.Liveness = l }
}
