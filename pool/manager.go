package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// Handle is the type-independent view of a pool held by the Manager.
type Handle interface {
	ID() string
	ResourceType() string
	Metrics() Metrics
	Close(ctx context.Context) error
}

var _ Handle = (*Pool[*struct{}])(nil)

// ManagerOptions configures defaults applied to every pool the manager creates.
type ManagerOptions struct {
	// Config is the default pool configuration. Defaults to DefaultConfig.
	Config Config

	// Retirer is handed to created pools. Nil disposes of idle resources inline.
	Retirer Retirer

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Manager is a registry of pools keyed by pool id. It holds handles only;
// resources are owned by the pools themselves.
type Manager struct {
	opts ManagerOptions

	mu    sync.RWMutex
	pools map[string]Handle
}

// NewManager creates an empty manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
		Clock:  clock.New(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Manager{opts: opts, pools: make(map[string]Handle)}
}

func defaultsFrom[T any](m *Manager) func(o *Options[T]) {
	return func(o *Options[T]) {
		o.Config = m.opts.Config
		o.Retirer = m.opts.Retirer
		o.Logger = m.opts.Logger
		o.Clock = m.opts.Clock
	}
}

// Create builds a new pool and registers it under id. It fails with
// core.ErrAlreadyRegistered when the id is taken.
func Create[T comparable](ctx context.Context, m *Manager, id, resourceType string, factory Factory[T], optFns ...func(o *Options[T])) (*Pool[T], error) {
	if m.has(id) {
		return nil, fmt.Errorf("pool %s: %w", id, core.ErrAlreadyRegistered)
	}

	p, err := New(ctx, id, resourceType, factory, append([]func(o *Options[T]){defaultsFrom[T](m)}, optFns...)...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.pools[id]; exists {
		m.mu.Unlock()
		return nil, multierr.Append(fmt.Errorf("pool %s: %w", id, core.ErrAlreadyRegistered), p.Close(ctx))
	}
	m.pools[id] = p
	m.mu.Unlock()

	return p, nil
}

// Get returns the pool registered under id. A missing id or a pool of a
// different resource type yields core.ErrNotFound.
func Get[T comparable](m *Manager, id string) (*Pool[T], error) {
	m.mu.RLock()
	h, ok := m.pools[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, core.ErrNotFound)
	}
	p, ok := h.(*Pool[T])
	if !ok {
		return nil, fmt.Errorf("pool %s holds %T, not %T: %w", id, h, (*Pool[T])(nil), core.ErrNotFound)
	}
	return p, nil
}

// GetOrCreate returns the pool registered under id, creating it when missing.
// Concurrent callers racing on the same id end up with the same pool.
func GetOrCreate[T comparable](ctx context.Context, m *Manager, id, resourceType string, factory Factory[T], optFns ...func(o *Options[T])) (*Pool[T], error) {
	if p, err := Get[T](m, id); err == nil || m.has(id) {
		return p, err
	}

	p, err := New(ctx, id, resourceType, factory, append([]func(o *Options[T]){defaultsFrom[T](m)}, optFns...)...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.pools[id]; ok {
		m.mu.Unlock()
		if cerr := p.Close(ctx); cerr != nil {
			m.opts.Logger.Warn("Closing duplicate pool failed", "pool_id", id, "error", cerr)
		}
		winner, ok := existing.(*Pool[T])
		if !ok {
			return nil, fmt.Errorf("pool %s holds %T: %w", id, existing, core.ErrNotFound)
		}
		return winner, nil
	}
	m.pools[id] = p
	m.mu.Unlock()

	return p, nil
}

// Remove closes the pool registered under id and deletes it from the registry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.pools[id]
	delete(m.pools, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("pool %s: %w", id, core.ErrNotFound)
	}
	return h.Close(ctx)
}

// CloseAll closes and removes every pool. All pools are attempted; failures
// are combined into the returned error.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]Handle)
	m.mu.Unlock()

	ids := make([]string, 0, len(pools))
	for id := range pools {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs error
	for _, id := range ids {
		if err := pools[id].Close(ctx); err != nil {
			m.opts.Logger.Error("Closing pool failed", "pool_id", id, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("pool %s: %w", id, err))
		}
	}
	return errs
}

// IDs returns the registered pool ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered pools.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Metrics returns a snapshot of every registered pool keyed by id.
func (m *Manager) Metrics() map[string]Metrics {
	m.mu.RLock()
	handles := make([]Handle, 0, len(m.pools))
	for _, h := range m.pools {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	out := make(map[string]Metrics, len(handles))
	for _, h := range handles {
		out[h.ID()] = h.Metrics()
	}
	return out
}

func (m *Manager) has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pools[id]
	return ok
}
