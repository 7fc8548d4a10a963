package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/internal/testutil"
)

type conn struct{ closed bool }

func (c *conn) Close() error { c.closed = true; return nil }

func newConn(context.Context) (*conn, error) { return &conn{}, nil }

func TestManager_CreateGetRemove(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Config = sized(1, 2, 1) })
	ctx := context.Background()

	f := testutil.NewFakeFactory()
	p, err := Create(ctx, m, "fakes", "fake", f.New)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Config().MaxSize, "manager defaults applied")

	_, err = Create(ctx, m, "fakes", "fake", f.New)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)

	got, err := Get[*testutil.FakeResource](m, "fakes")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = Get[*conn](m, "fakes")
	assert.ErrorIs(t, err, core.ErrNotFound, "type mismatch is reported as not found")

	_, err = Get[*conn](m, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []string{"fakes"}, m.IDs())
	require.NoError(t, m.Remove(ctx, "fakes"))
	assert.True(t, p.Closed())
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Remove(ctx, "fakes"), core.ErrNotFound)
}

func TestManager_PoolOptionsOverrideDefaults(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Config = sized(0, 2, 1) })
	p, err := Create(context.Background(), m, "conns", "conn", newConn, func(o *Options[*conn]) {
		o.Config = sized(1, 8, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 8, p.Config().MaxSize)
	assert.Equal(t, 1, p.Metrics().Total)
}

func TestManager_GetOrCreateConcurrent(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Config = sized(1, 2, 1) })

	var wg sync.WaitGroup
	pools := make([]*Pool[*conn], 8)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := GetOrCreate(context.Background(), m, "shared", "conn", newConn)
			assert.NoError(t, err)
			pools[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range pools[1:] {
		assert.Same(t, pools[0], p)
	}
	assert.Equal(t, 1, m.Len())
	assert.False(t, pools[0].Closed())
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Config = sized(1, 1, 1) })
	ctx := context.Background()

	boom := errors.New("close failed")
	bad := testutil.NewFakeFactory().CloseError(boom)
	good := testutil.NewFakeFactory()
	_, err := Create(ctx, m, "bad", "fake", bad.New)
	require.NoError(t, err)
	gp, err := Create(ctx, m, "good", "fake", good.New)
	require.NoError(t, err)

	_, err = gp.Acquire(ctx, "", time.Second)
	require.NoError(t, err)

	metrics := m.Metrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, 1, metrics["good"].InUse)

	err = m.CloseAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, bad.ClosedCount())
	assert.Equal(t, 1, good.ClosedCount(), "a failing pool does not block the others")
	assert.Equal(t, 0, m.Len())
}
