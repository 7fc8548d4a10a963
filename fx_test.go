package resourcekit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/hupe1980/resourcekit/cleanup"
	"github.com/hupe1980/resourcekit/initializer"
	"github.com/hupe1980/resourcekit/internal/testutil"
	"github.com/hupe1980/resourcekit/logging"
	"github.com/hupe1980/resourcekit/pool"
)

func TestModule_Lifecycle(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	opts := DefaultOptions()
	opts.Initializer.AutoStart = false
	opts.Initializer.PollInterval = 5 * time.Millisecond

	var (
		rt        *Runtime
		scheduler *cleanup.Scheduler
		inits     *initializer.Initializer
		manager   *pool.Manager
	)

	app := fxtest.New(t,
		Module,
		fx.Supply(&opts),
		fx.Provide(func() logging.Logger { return logging.NoOpLogger{} }),
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Populate(&rt, &scheduler, &inits, &manager),
	)

	require.NotNil(t, rt)
	assert.Same(t, rt.Scheduler(), scheduler)
	assert.Same(t, rt.Initializer(), inits)
	assert.Same(t, rt.Pools(), manager)

	value := &testutil.FakeResource{}
	require.NoError(t, inits.Register("value", func(context.Context) (any, error) { return value, nil }, 0))

	app.RequireStart()

	assert.Eventually(t, func() bool { return inits.IsInitialized("value") }, 2*time.Second, 5*time.Millisecond,
		"OnStart starts the initializer loop")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "the collector is registered on start")

	app.RequireStop()

	assert.Equal(t, 1, value.Closed(), "OnStop closes the runtime")
	_, err = scheduler.Schedule(value)
	assert.Error(t, err)
}

func TestModule_WithoutOptionalDependencies(t *testing.T) {
	var rt *Runtime
	app := fxtest.New(t, Module, fx.Populate(&rt))
	app.RequireStart()
	require.NotNil(t, rt)
	assert.Equal(t, DefaultOptions().MetricsNamespace, rt.Options().MetricsNamespace)
	app.RequireStop()
}
