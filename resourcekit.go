// Package resourcekit bundles the resource lifecycle components of an
// application into one Runtime: a registry of resource pools, a deferred
// cleanup scheduler, a background initializer, a tracker for ad hoc resources
// and a Prometheus collector over all of them.
//
// Most applications:
//  1. Create a Runtime via New (optionally overriding configuration, logger or clock)
//  2. Create pools with pool.Create(ctx, rt.Pools(), ...) and register
//     initializations with rt.Initializer().Register(...)
//  3. Hand resources that must outlive a scope to rt.Scheduler()
//  4. Call Close on shutdown, or use Module inside an fx application
//
// Components receive their dependencies explicitly; there is no package
// level state.
package resourcekit

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/hupe1980/resourcekit/cleanup"
	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/initializer"
	"github.com/hupe1980/resourcekit/logging"
	"github.com/hupe1980/resourcekit/metrics"
	"github.com/hupe1980/resourcekit/pool"
)

// Options configures the Runtime.
type Options struct {
	// Pool is the default configuration of pools created through Pools().
	Pool pool.Config

	// Cleanup configures the deferred cleanup scheduler.
	Cleanup cleanup.Config

	// Initializer configures the background initializer.
	Initializer initializer.Config

	// DeferIdleCleanup hands resources removed by pool scale-down or error
	// reports to the cleanup scheduler instead of disposing of them inline.
	DeferIdleCleanup bool

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string

	// Logger (defaults to NoOp logger if nil). A *logging.RuntimeLogger is
	// tagged with the component name for each component.
	Logger logging.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultOptions returns the default runtime configuration.
func DefaultOptions() Options {
	return Options{
		Pool:             pool.DefaultConfig,
		Cleanup:          cleanup.DefaultConfig,
		Initializer:      initializer.DefaultConfig,
		DeferIdleCleanup: true,
		MetricsNamespace: "resourcekit",
		Logger:           logging.NoOpLogger{},
		Clock:            clock.New(),
	}
}

// Runtime owns one instance of every lifecycle component.
type Runtime struct {
	opts        Options
	pools       *pool.Manager
	scheduler   *cleanup.Scheduler
	initializer *initializer.Initializer
	tracker     *core.Tracker
	collector   *metrics.Collector

	closeOnce sync.Once
	closeErr  error
}

// New creates a Runtime. It fails when one of the component configurations is invalid.
func New(optFns ...func(o *Options)) (*Runtime, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if err := opts.Pool.Validate(); err != nil {
		return nil, err
	}

	scheduler, err := cleanup.New(func(o *cleanup.Options) {
		o.Config = opts.Cleanup
		o.Logger = componentLogger(opts.Logger, "cleanup")
		o.Clock = opts.Clock
	})
	if err != nil {
		return nil, err
	}

	inits, err := initializer.New(func(o *initializer.Options) {
		o.Config = opts.Initializer
		o.Logger = componentLogger(opts.Logger, "initializer")
		o.Clock = opts.Clock
	})
	if err != nil {
		return nil, err
	}

	pools := pool.NewManager(func(o *pool.ManagerOptions) {
		o.Config = opts.Pool
		o.Logger = componentLogger(opts.Logger, "pool")
		o.Clock = opts.Clock
		if opts.DeferIdleCleanup {
			o.Retirer = scheduler
		}
	})

	ns := opts.MetricsNamespace

	return &Runtime{
		opts:        opts,
		pools:       pools,
		scheduler:   scheduler,
		initializer: inits,
		tracker:     core.NewTracker(),
		collector: metrics.NewCollector(
			metrics.Pools(ns, pools),
			metrics.Scheduler(ns, scheduler),
			metrics.Initializer(ns, inits),
		),
	}, nil
}

func componentLogger(l logging.Logger, component string) logging.Logger {
	if rl, ok := l.(*logging.RuntimeLogger); ok {
		return rl.WithComponent(component)
	}
	return l
}

// Pools returns the pool registry.
func (r *Runtime) Pools() *pool.Manager { return r.pools }

// Scheduler returns the deferred cleanup scheduler.
func (r *Runtime) Scheduler() *cleanup.Scheduler { return r.scheduler }

// Initializer returns the background initializer.
func (r *Runtime) Initializer() *initializer.Initializer { return r.initializer }

// Tracker returns the tracker for resources that are neither pooled nor scheduled.
func (r *Runtime) Tracker() *core.Tracker { return r.tracker }

// Collector returns the Prometheus collector over all components.
func (r *Runtime) Collector() *metrics.Collector { return r.collector }

// Options returns the effective runtime options.
func (r *Runtime) Options() Options { return r.opts }

// Close shuts every component down: the initializer first, then all pools,
// then tracked resources. The scheduler is flushed last so that resources
// retired by the previous steps are disposed of before it stops. Every step
// runs even if an earlier one failed; errors are combined. Close is idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		logger := r.opts.Logger
		steps := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"initializer", r.initializer.Close},
			{"pools", r.pools.CloseAll},
			{"tracker", r.tracker.CleanupAll},
			{"scheduler flush", r.scheduler.Flush},
			{"scheduler shutdown", r.scheduler.Shutdown},
		}

		for _, s := range steps {
			if err := s.fn(ctx); err != nil {
				logger.Error("Runtime shutdown step failed", "step", s.name, "error", err)
				r.closeErr = multierr.Append(r.closeErr, err)
			}
		}
		logger.Info("Runtime closed")
	})

	return r.closeErr
}
