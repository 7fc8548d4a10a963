package initializer

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// InitFunc produces the value registered under a name.
type InitFunc func(ctx context.Context) (any, error)

// Config defines the initializer knobs.
type Config struct {
	// MaxConcurrentInitializations bounds how many InitFuncs run at once.
	MaxConcurrentInitializations int

	// PollInterval is the longest the loop sleeps while nothing is eligible.
	PollInterval time.Duration

	// RetryDelay is the pause before a failed initialization is queued again.
	RetryDelay time.Duration

	// MaxAttempts caps attempts per name, after which the name is permanently
	// failed. Zero, the default, retries forever.
	MaxAttempts int

	// AutoStart starts the background loop on the first Register.
	AutoStart bool
}

// DefaultConfig provides the default initializer configuration.
var DefaultConfig = Config{
	MaxConcurrentInitializations: 5,
	PollInterval:                 100 * time.Millisecond,
	RetryDelay:                   time.Second,
	MaxAttempts:                  0,
	AutoStart:                    true,
}

// Validate reports impossible values.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentInitializations <= 0:
		return fmt.Errorf("max concurrent initializations must be positive, got %d: %w", c.MaxConcurrentInitializations, core.ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s: %w", c.PollInterval, core.ErrInvalidConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry delay must not be negative, got %s: %w", c.RetryDelay, core.ErrInvalidConfig)
	case c.MaxAttempts < 0:
		return fmt.Errorf("max attempts must not be negative, got %d: %w", c.MaxAttempts, core.ErrInvalidConfig)
	}
	return nil
}

// Options configures an Initializer.
type Options struct {
	// Config defaults to DefaultConfig.
	Config Config

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
}
