package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// Config defines size bounds and auto-scaling behavior of a Pool.
type Config struct {
	// MinSize is the number of resources created up front and kept through scale-down.
	MinSize int

	// MaxSize bounds the number of resources, idle or checked out.
	MaxSize int

	// MaxIdle is the number of idle resources scale-down leaves in place.
	MaxIdle int

	// AutoScale enables utilization-driven growth and shrinking.
	AutoScale bool

	// ScaleUpThreshold is the in-use ratio at or above which one resource is added.
	ScaleUpThreshold float64

	// ScaleDownThreshold is the in-use ratio at or below which idle resources are retired.
	ScaleDownThreshold float64

	// AcquireTimeout is used by Acquire when the caller passes a non-positive timeout.
	AcquireTimeout time.Duration
}

// DefaultConfig provides the default pool configuration. The 0.8 / 0.3
// thresholds are defaults, not invariants; tune them per workload.
var DefaultConfig = Config{
	MinSize:            1,
	MaxSize:            10,
	MaxIdle:            5,
	AutoScale:          true,
	ScaleUpThreshold:   0.8,
	ScaleDownThreshold: 0.3,
	AcquireTimeout:     30 * time.Second,
}

// Validate reports impossible combinations.
func (c Config) Validate() error {
	switch {
	case c.MaxSize <= 0:
		return fmt.Errorf("max size must be positive, got %d: %w", c.MaxSize, core.ErrInvalidConfig)
	case c.MinSize < 0 || c.MinSize > c.MaxSize:
		return fmt.Errorf("min size %d outside [0, %d]: %w", c.MinSize, c.MaxSize, core.ErrInvalidConfig)
	case c.MaxIdle < 0:
		return fmt.Errorf("max idle must not be negative, got %d: %w", c.MaxIdle, core.ErrInvalidConfig)
	}
	return validateThresholds(c.ScaleUpThreshold, c.ScaleDownThreshold)
}

func validateThresholds(up, down float64) error {
	if up <= 0 || up > 1 || down < 0 || down >= up {
		return fmt.Errorf("scale thresholds must satisfy 0 <= down < up <= 1, got down=%v up=%v: %w", down, up, core.ErrInvalidConfig)
	}
	return nil
}

// Factory creates one resource. It may block; ctx bounds the call.
type Factory[T any] func(ctx context.Context) (T, error)

// Retirer takes over disposal of resources removed by scale-down or error
// reports, typically by scheduling them on a cleanup scheduler.
type Retirer interface {
	Retire(id string, resource any, dispose core.DisposeFunc) error
}

// Options configures a Pool using the functional options pattern.
type Options[T any] struct {
	// Config holds size bounds and scaling thresholds. Defaults to DefaultConfig.
	Config Config

	// CleanupHook, when set, runs instead of the Close/Cleanup/Shutdown/Stop probes.
	CleanupHook func(ctx context.Context, resource T) error

	// Retirer receives resources removed outside Close. Nil disposes of them inline.
	Retirer Retirer

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
}
