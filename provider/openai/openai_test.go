package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/resourcekit/pool"
)

func newServer(t *testing.T, auth *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":1,"owned_by":"system"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_UsesOwnTransport(t *testing.T) {
	var auth atomic.Value
	srv := newServer(t, &auth)

	c := NewClient(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
		o.MaxRetries = 0
	})

	page, err := c.Models.List(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "gpt-4o-mini", page.Data[0].ID)
	assert.Equal(t, "Bearer test-key", auth.Load())

	other := NewClient()
	assert.NotSame(t, c.HTTPClient().Transport, other.HTTPClient().Transport)
	assert.NotSame(t, http.DefaultTransport, c.HTTPClient().Transport)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
}

func TestNewFactory_RespectsContext(t *testing.T) {
	factory := NewFactory(func(o *Options) { o.APIKey = "k" })

	c, err := factory(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = factory(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPool_ClosesClientsWithPool(t *testing.T) {
	var auth atomic.Value
	srv := newServer(t, &auth)
	ctx := context.Background()

	cfg := pool.DefaultConfig
	cfg.MinSize, cfg.MaxSize, cfg.MaxIdle = 2, 4, 2

	m := pool.NewManager()
	p, err := NewPool(ctx, m, "openai-main", func(o *Options) {
		o.APIKey = "pooled-key"
		o.BaseURL = srv.URL
		o.Pool = &cfg
	})
	require.NoError(t, err)
	assert.Equal(t, ResourceType, p.ResourceType())
	assert.Equal(t, 2, p.Metrics().Total)

	again, err := NewPool(ctx, m, "openai-main")
	require.NoError(t, err)
	assert.Same(t, p, again)

	err = p.Use(ctx, "test", time.Second, func(c *Client) error {
		_, err := c.Models.List(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer pooled-key", auth.Load())

	var clients []*Client
	for i := 0; i < 2; i++ {
		c, err := p.Acquire(ctx, "", time.Second)
		require.NoError(t, err)
		clients = append(clients, c)
	}

	require.NoError(t, m.CloseAll(ctx))
	for _, c := range clients {
		assert.True(t, c.Closed())
	}
}
