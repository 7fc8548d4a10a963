package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/internal/testutil"
	"github.com/hupe1980/resourcekit/logging"
)

func newFakePool(t *testing.T, f *testutil.FakeFactory, cfg Config, optFns ...func(o *Options[*testutil.FakeResource])) *Pool[*testutil.FakeResource] {
	t.Helper()
	fns := append([]func(o *Options[*testutil.FakeResource]){func(o *Options[*testutil.FakeResource]) { o.Config = cfg }}, optFns...)
	p, err := New(context.Background(), "test", "fake", f.New, fns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func sized(minSize, maxSize, maxIdle int) Config {
	cfg := DefaultConfig
	cfg.MinSize, cfg.MaxSize, cfg.MaxIdle = minSize, maxSize, maxIdle
	return cfg
}

func TestNew_WarmsUpMinSize(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(2, 5, 2))

	m := p.Metrics()
	assert.Equal(t, 2, f.Created())
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 2, m.Available)
	assert.Equal(t, "test", m.PoolID)
	assert.Equal(t, "fake", m.ResourceType)
	for _, info := range p.Resources() {
		assert.Equal(t, StateAvailable, info.State)
	}
}

func TestNew_WarmUpFailureClosesCreated(t *testing.T) {
	f := testutil.NewFakeFactory()
	calls := 0
	factory := func(ctx context.Context) (*testutil.FakeResource, error) {
		calls++
		if calls == 3 {
			return nil, testutil.ErrInjected
		}
		return f.New(ctx)
	}

	_, err := New(context.Background(), "warm", "fake", factory, func(o *Options[*testutil.FakeResource]) {
		o.Config = sized(3, 5, 1)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCreation)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 2, f.ClosedCount())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero max", sized(0, 0, 0)},
		{"min above max", sized(4, 2, 1)},
		{"negative idle", sized(1, 2, -1)},
		{"inverted thresholds", func() Config { c := sized(1, 2, 1); c.ScaleDownThreshold = 0.9; return c }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), "bad", "fake", testutil.NewFakeFactory().New, func(o *Options[*testutil.FakeResource]) {
				o.Config = tt.cfg
			})
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestPool_ConcurrentAcquireScenario(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 3, 1))

	var wg sync.WaitGroup
	results := make([]*testutil.FakeResource, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Acquire(context.Background(), fmt.Sprintf("caller-%d", i), time.Second)
		}(i)
	}
	wg.Wait()

	seen := map[*testutil.FakeResource]bool{}
	for i := 0; i < 3; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.False(t, seen[results[i]], "resource handed out twice")
		seen[results[i]] = true
	}
	assert.Equal(t, 3, f.Created())

	_, err := p.Acquire(context.Background(), "caller-4", 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnavailable)

	m := p.Metrics()
	assert.Equal(t, 3, m.Total, "timeout must not change the pool size")
	assert.Equal(t, int64(1), m.Timeouts)
}

func TestPool_NoDoubleCheckout(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 4, 2))

	var (
		mu   sync.Mutex
		held = map[*testutil.FakeResource]string{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := fmt.Sprintf("worker-%d", w)
			for i := 0; i < 50; i++ {
				r, err := p.Acquire(context.Background(), owner, 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				if prev, ok := held[r]; ok {
					t.Errorf("resource %d held by %s and %s", r.Seq, prev, owner)
				}
				held[r] = owner
				mu.Unlock()

				mu.Lock()
				delete(held, r)
				mu.Unlock()
				assert.NoError(t, p.Release(r, owner))
			}
		}(w)
	}
	wg.Wait()

	m := p.Metrics()
	assert.LessOrEqual(t, m.Total, 4)
	assert.GreaterOrEqual(t, m.Total, 1)
	assert.Equal(t, int64(16*50), m.Acquisitions)
	assert.Equal(t, int64(16*50), m.Releases)
	assert.LessOrEqual(t, m.PeakInUse, 4)
}

func TestPool_ReleaseOwnership(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 1, 1))

	r, err := p.Acquire(context.Background(), "alice", time.Second)
	require.NoError(t, err)

	err = p.Release(r, "bob")
	assert.ErrorIs(t, err, core.ErrOwnership)
	info := p.Resources()
	require.Len(t, info, 1)
	assert.Equal(t, StateInUse, info[0].State)
	assert.Equal(t, "alice", info[0].Owner)

	require.NoError(t, p.Release(r, "alice"))
	assert.ErrorIs(t, p.Release(r, "alice"), core.ErrOwnership, "double release")

	r, err = p.Acquire(context.Background(), "carol", time.Second)
	require.NoError(t, err)
	assert.NoError(t, p.Release(r, ""), "owner-less release is accepted")

	assert.ErrorIs(t, p.Release(&testutil.FakeResource{}, ""), core.ErrNotFound)
}

func TestPool_CapacityInvariant(t *testing.T) {
	f := testutil.NewFakeFactory()
	cfg := sized(2, 6, 1)
	p := newFakePool(t, f, cfg)

	var held []*testutil.FakeResource
	ops := []bool{true, true, true, true, true, false, false, true, true, true, false, false, false, false, false, false, true, false}
	for i, acquire := range ops {
		if acquire {
			r, err := p.Acquire(context.Background(), "", time.Second)
			require.NoError(t, err)
			held = append(held, r)
		} else {
			require.NoError(t, p.Release(held[0], ""))
			held = held[1:]
		}
		m := p.Metrics()
		assert.GreaterOrEqual(t, m.Total, cfg.MinSize, "step %d", i)
		assert.LessOrEqual(t, m.Total, cfg.MaxSize, "step %d", i)
		assert.Equal(t, len(held), m.InUse, "step %d", i)
	}
}

func TestPool_ScalesUpAndDown(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 3, 1))

	var held []*testutil.FakeResource
	for i := 0; i < 3; i++ {
		r, err := p.Acquire(context.Background(), "", time.Second)
		require.NoError(t, err)
		held = append(held, r)
	}
	m := p.Metrics()
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, int64(2), m.ScaleUps)
	assert.Equal(t, int64(3), m.Hits, "scale-up keeps an idle resource ready for the next acquire")

	for _, r := range held {
		require.NoError(t, p.Release(r, ""))
	}
	m = p.Metrics()
	assert.Equal(t, 1, m.Total)
	assert.Equal(t, int64(2), m.ScaleDowns)
	assert.Equal(t, 2, f.ClosedCount())
}

type recordingRetirer struct {
	mu      sync.Mutex
	ids     []string
	dispose []core.DisposeFunc
}

func (r *recordingRetirer) Retire(id string, _ any, dispose core.DisposeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.dispose = append(r.dispose, dispose)
	return nil
}

func TestPool_ScaleDownUsesRetirer(t *testing.T) {
	f := testutil.NewFakeFactory()
	ret := &recordingRetirer{}
	p := newFakePool(t, f, sized(1, 3, 0), func(o *Options[*testutil.FakeResource]) { o.Retirer = ret })

	a, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Release(a, ""))

	require.Len(t, ret.ids, 1)
	assert.Equal(t, 0, f.ClosedCount(), "retired resources are disposed by the retirer")
	require.NoError(t, ret.dispose[0](context.Background(), nil))
	assert.Equal(t, 1, f.ClosedCount())
	assert.Equal(t, 1, p.Metrics().Total)
}

func TestPool_FactoryFailureKeepsBookkeeping(t *testing.T) {
	f := testutil.NewFakeFactory().FailNext(1, nil)
	p := newFakePool(t, f, sized(0, 2, 1))

	_, err := p.Acquire(context.Background(), "", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCreation)
	var ce *core.CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "test", ce.Resource)

	m := p.Metrics()
	assert.Equal(t, 0, m.Total)
	assert.Equal(t, 0, m.Creating)
	assert.Equal(t, int64(1), m.CreationFailures)

	r, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestPool_FactoryPanicIsCreationError(t *testing.T) {
	p, err := New(context.Background(), "panicky", "fake", func(context.Context) (*testutil.FakeResource, error) {
		panic("factory exploded")
	}, func(o *Options[*testutil.FakeResource]) { o.Config = sized(0, 1, 0) })
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, core.ErrCreation)
	var pe *core.PanicError
	assert.ErrorAs(t, err, &pe)
}

func TestPool_WaiterWokenByRelease(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 1, 1))

	first, err := p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)

	got := make(chan *testutil.FakeResource, 1)
	go func() {
		r, err := p.Acquire(context.Background(), "b", 2*time.Second)
		assert.NoError(t, err)
		got <- r
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Release(first, "a"))

	select {
	case r := <-got:
		assert.Same(t, first, r)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestPool_ContextCancelIsNotUnavailable(t *testing.T) {
	p := newFakePool(t, testutil.NewFakeFactory(), sized(1, 1, 1))
	_, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, "", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrUnavailable)
}

func TestPool_Close(t *testing.T) {
	f := testutil.NewFakeFactory()
	p, err := New(context.Background(), "closing", "fake", f.New, func(o *Options[*testutil.FakeResource]) {
		o.Config = sized(2, 2, 2)
	})
	require.NoError(t, err)

	a, err := p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	_, err = p.Acquire(context.Background(), "b", time.Second)
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), "c", 5*time.Second)
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 2, f.ClosedCount(), "checked out resources are closed too")

	select {
	case err := <-waiterErr:
		assert.ErrorIs(t, err, core.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}

	assert.NoError(t, p.Close(context.Background()), "Close is idempotent")
	assert.True(t, p.Closed())
	_, err = p.Acquire(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, p.Release(a, "a"), core.ErrClosed)
	for _, r := range f.Resources() {
		assert.Equal(t, 1, r.Closed())
	}
}

func TestPool_CloseAggregatesFailures(t *testing.T) {
	boom := errors.New("close failed")
	f := testutil.NewFakeFactory().CloseError(boom)
	p, err := New(context.Background(), "agg", "fake", f.New, func(o *Options[*testutil.FakeResource]) {
		o.Config = sized(3, 3, 3)
	})
	require.NoError(t, err)

	err = p.Close(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.ErrorIs(t, err, core.ErrCleanup)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, f.ClosedCount(), "one failure never blocks the others")
	assert.Equal(t, int64(3), p.Metrics().CleanupFailures)
}

func TestPool_CleanupHookRunsFirst(t *testing.T) {
	f := testutil.NewFakeFactory()
	var hooked []*testutil.FakeResource
	p, err := New(context.Background(), "hook", "fake", f.New, func(o *Options[*testutil.FakeResource]) {
		o.Config = sized(1, 1, 1)
		o.CleanupHook = func(_ context.Context, r *testutil.FakeResource) error {
			hooked = append(hooked, r)
			return nil
		}
	})
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	require.Len(t, hooked, 1)
	assert.Equal(t, 0, hooked[0].Closed(), "hook replaces the Close probe")
}

func TestPool_ReportError(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 1, 1))

	r, err := p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	require.NoError(t, p.ReportError(r, errors.New("connection reset")))

	assert.Equal(t, 1, r.Closed())
	m := p.Metrics()
	assert.Equal(t, 0, m.Total)
	assert.Equal(t, int64(1), m.Errors)
	assert.ErrorIs(t, p.Release(r, "a"), core.ErrNotFound)
	assert.ErrorIs(t, p.ReportError(r, nil), core.ErrNotFound)

	fresh, err := p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	assert.NotSame(t, r, fresh)
}

func TestPool_SetAutoScaling(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 3, 1))

	assert.ErrorIs(t, p.SetAutoScaling(true, 0.2, 0.5), core.ErrInvalidConfig)
	require.NoError(t, p.SetAutoScaling(false, 0.9, 0.1))

	_, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Metrics().Total, "no scale-up while disabled")

	cfg := p.Config()
	assert.False(t, cfg.AutoScale)
	assert.InDelta(t, 0.9, cfg.ScaleUpThreshold, 1e-9)
}

func TestPool_UsageMetricsWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	f := testutil.NewFakeFactory()
	cfg := sized(1, 1, 1)
	cfg.AutoScale = false
	p := newFakePool(t, f, cfg, func(o *Options[*testutil.FakeResource]) { o.Clock = mock })

	r, err := p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	mock.Add(2 * time.Second)
	require.NoError(t, p.Release(r, "a"))

	r, err = p.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	mock.Add(3 * time.Second)
	require.NoError(t, p.Release(r, "a"))

	info := p.Resources()
	require.Len(t, info, 1)
	assert.Equal(t, int64(2), info[0].Metrics.Acquisitions)
	assert.Equal(t, 5*time.Second, info[0].Metrics.TotalInUse)
	assert.Equal(t, 3*time.Second, info[0].Metrics.PeakInUse)
	assert.Equal(t, 5*time.Second, p.Metrics().TotalInUse)
	assert.InDelta(t, 1.0, p.Metrics().HitRate, 1e-9)
}

func TestPool_Use(t *testing.T) {
	f := testutil.NewFakeFactory()
	p := newFakePool(t, f, sized(1, 1, 1))

	boom := errors.New("work failed")
	err := p.Use(context.Background(), "worker", time.Second, func(r *testutil.FakeResource) error {
		assert.Equal(t, 1, p.Metrics().InUse)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Metrics().InUse, "released after an error")
}

type acquireRecorder struct {
	logging.NoOpLogger
	mu    sync.Mutex
	pools []string
	errs  []error
}

func (r *acquireRecorder) LogAcquire(poolID, _ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = append(r.pools, poolID)
	r.errs = append(r.errs, err)
}

func TestPool_AcquireUsesStructuredLogger(t *testing.T) {
	rec := &acquireRecorder{}
	p := newFakePool(t, testutil.NewFakeFactory(), sized(1, 2, 1), func(o *Options[*testutil.FakeResource]) {
		o.Logger = rec
	})

	r, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Release(r, ""))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"test"}, rec.pools)
	assert.Equal(t, []error{nil}, rec.errs)
}

func TestPool_AcquireTimeoutUsesStructuredLogger(t *testing.T) {
	rec := &acquireRecorder{}
	p := newFakePool(t, testutil.NewFakeFactory(), sized(1, 1, 1), func(o *Options[*testutil.FakeResource]) {
		o.Logger = rec
	})

	_, err := p.Acquire(context.Background(), "", time.Second)
	require.NoError(t, err)
	_, err = p.Acquire(context.Background(), "", 10*time.Millisecond)
	require.ErrorIs(t, err, core.ErrUnavailable)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 2)
	assert.NoError(t, rec.errs[0])
	assert.ErrorIs(t, rec.errs[1], context.DeadlineExceeded)
}

func TestPool_NonComparableResourceIsCreationError(t *testing.T) {
	factory := func(context.Context) (any, error) { return []int{1}, nil }
	p, err := New[any](context.Background(), "slices", "slice", factory, func(o *Options[any]) {
		o.Config = sized(0, 2, 1)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	_, err = p.Acquire(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, core.ErrCreation)
	assert.Equal(t, 0, p.Metrics().Total)
}

func TestResourceState_String(t *testing.T) {
	assert.Equal(t, "available", StateAvailable.String())
	assert.Equal(t, "in_use", StateInUse.String())
	assert.Equal(t, "cleaning_up", StateCleaningUp.String())
	assert.Equal(t, "unknown(99)", ResourceState(99).String())
}
