package resourcekit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/hupe1980/resourcekit/cleanup"
	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/initializer"
	"github.com/hupe1980/resourcekit/logging"
	"github.com/hupe1980/resourcekit/pool"
)

// Params are the optional dependencies the fx module consumes.
type Params struct {
	fx.In

	Options *Options       `optional:"true"`
	Logger  logging.Logger `optional:"true"`
}

// Module provides a Runtime and its components to an fx application. The
// initializer loop starts with the application and the runtime is closed when
// it stops. When a prometheus.Registerer is available the collector is
// registered with it.
var Module = fx.Module("resourcekit",
	fx.Provide(
		ProvideRuntime,
		func(r *Runtime) *pool.Manager { return r.Pools() },
		func(r *Runtime) *cleanup.Scheduler { return r.Scheduler() },
		func(r *Runtime) *initializer.Initializer { return r.Initializer() },
		func(r *Runtime) *core.Tracker { return r.Tracker() },
		fx.Annotate(
			func(r *Runtime) prometheus.Collector { return r.Collector() },
			fx.ResultTags(`name:"resourcekit"`),
		),
	),
	fx.Invoke(registerLifecycle),
)

// ProvideRuntime builds a Runtime from the optional Params.
func ProvideRuntime(p Params) (*Runtime, error) {
	return New(func(o *Options) {
		if p.Options != nil {
			*o = *p.Options
		}
		if p.Logger != nil {
			o.Logger = p.Logger
		}
	})
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Runtime    *Runtime
	Registerer prometheus.Registerer `optional:"true"`
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if p.Registerer != nil {
				if err := p.Registerer.Register(p.Runtime.Collector()); err != nil {
					return err
				}
			}
			p.Runtime.Initializer().Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if p.Registerer != nil {
				p.Registerer.Unregister(p.Runtime.Collector())
			}
			return p.Runtime.Close(ctx)
		},
	})
}
