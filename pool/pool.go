package pool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// Pool is a bounded, dynamically sized set of interchangeable resources.
// T must be comparable because Release finds the owning PooledResource by
// the identity of the instance handed out; pointer types are the usual choice.
// With an interface T, a factory returning a value whose dynamic type is not
// comparable fails the creation with a core.CreationError.
type Pool[T comparable] struct {
	id           string
	resourceType string
	factory      Factory[T]
	cleanupHook  func(ctx context.Context, resource T) error
	retirer      Retirer
	logger       logging.Logger
	clock        clock.Clock
	createdAt    time.Time

	mu        sync.Mutex
	changed   chan struct{} // closed and replaced on every availability change
	cfg       Config
	resources map[string]*PooledResource[T]
	available map[string]struct{}
	index     map[T]string
	creating  int
	closing   bool
	peakInUse int

	stats stats
}

// New creates a pool and warms it up with Config.MinSize resources. If
// warm-up fails, the resources created so far are closed and the creation
// error is returned.
func New[T comparable](ctx context.Context, id, resourceType string, factory Factory[T], optFns ...func(o *Options[T])) (*Pool[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("pool %s: nil factory: %w", id, core.ErrInvalidConfig)
	}

	opts := Options[T]{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
		Clock:  clock.New(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("pool %s: %w", id, err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	p := &Pool[T]{
		id:           id,
		resourceType: resourceType,
		factory:      factory,
		cleanupHook:  opts.CleanupHook,
		retirer:      opts.Retirer,
		logger:       logging.OrNoOp(opts.Logger),
		clock:        opts.Clock,
		createdAt:    opts.Clock.Now(),
		changed:      make(chan struct{}),
		cfg:          opts.Config,
		resources:    make(map[string]*PooledResource[T]),
		available:    make(map[string]struct{}),
		index:        make(map[T]string),
	}

	for i := 0; i < p.cfg.MinSize; i++ {
		r, err := p.create(ctx)
		if err != nil {
			return nil, multierr.Append(err, p.Close(ctx))
		}
		p.mu.Lock()
		p.addLocked(r)
		p.mu.Unlock()
	}

	p.logger.Info("Pool created", "pool_id", id, "resource_type", resourceType, "min_size", p.cfg.MinSize, "max_size", p.cfg.MaxSize)

	return p, nil
}

// ID returns the pool identifier.
func (p *Pool[T]) ID() string { return p.id }

// ResourceType returns the resource type tag given at construction.
func (p *Pool[T]) ResourceType() string { return p.resourceType }

// Config returns the current configuration including runtime threshold changes.
func (p *Pool[T]) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Acquire checks out a resource for owner. It blocks until an idle resource is
// available or a new one can be created, for at most timeout (Config.AcquireTimeout
// when timeout <= 0). On timeout it returns core.ErrUnavailable without changing
// the pool size; on a closing pool it returns core.ErrClosed immediately.
func (p *Pool[T]) Acquire(ctx context.Context, owner string, timeout time.Duration) (T, error) {
	var zero T

	start := p.clock.Now()
	if timeout <= 0 {
		timeout = p.Config().AcquireTimeout
	}
	ctx, cancel := p.clock.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		p.mu.Lock()
		if p.closing {
			p.mu.Unlock()
			return zero, fmt.Errorf("pool %s: %w", p.id, core.ErrClosed)
		}

		if id, ok := p.takeAvailableLocked(); ok {
			r := p.resources[id]
			if err := r.markInUse(owner); err != nil {
				// Not reachable while the idle set only holds available resources.
				p.mu.Unlock()
				return zero, err
			}
			p.trackPeakLocked()
			p.mu.Unlock()

			p.stats.hits.Add(1)
			p.afterAcquire(ctx, r, start)
			return r.Resource, nil
		}

		if len(p.resources)+p.creating < p.cfg.MaxSize {
			p.creating++
			p.mu.Unlock()

			r, err := p.create(ctx)

			p.mu.Lock()
			p.creating--
			if err != nil {
				p.broadcastLocked()
				p.mu.Unlock()
				p.logger.Warn("Resource creation failed", "pool_id", p.id, "error", err)
				return zero, err
			}
			if p.closing {
				p.mu.Unlock()
				p.dispose(context.WithoutCancel(ctx), r)
				return zero, fmt.Errorf("pool %s: %w", p.id, core.ErrClosed)
			}
			p.addLocked(r)
			delete(p.available, r.ID)
			_ = r.markInUse(owner)
			p.trackPeakLocked()
			p.mu.Unlock()

			p.afterAcquire(ctx, r, start)
			return r.Resource, nil
		}

		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			p.stats.timeouts.Add(1)
			err := ctx.Err()
			if al, ok := p.logger.(logging.AcquireLogger); ok {
				al.LogAcquire(p.id, "", p.clock.Since(start), err)
			} else {
				p.logger.Warn("Resource acquisition timed out", "pool_id", p.id, "owner", owner, "timeout", timeout, "error", err)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return zero, fmt.Errorf("pool %s: no resource within %s: %w", p.id, timeout, core.ErrUnavailable)
			}
			return zero, fmt.Errorf("pool %s: %w", p.id, err)
		}
	}
}

func (p *Pool[T]) afterAcquire(ctx context.Context, r *PooledResource[T], start time.Time) {
	wait := p.clock.Now().Sub(start)
	p.stats.acquisitions.Add(1)
	p.stats.totalWait.Add(int64(wait))
	p.stats.lastAcquire.Store(p.clock.Now().UnixNano())
	if al, ok := p.logger.(logging.AcquireLogger); ok {
		al.LogAcquire(p.id, r.ID, wait, nil)
	} else {
		p.logger.Debug("Resource acquired", "pool_id", p.id, "resource_id", r.ID, "wait", wait)
	}
	p.autoScale(context.WithoutCancel(ctx))
}

// Release returns a resource obtained from Acquire. When both the acquire and
// the release carry an owner tag they must match; otherwise core.ErrOwnership
// is returned and the resource stays checked out.
func (p *Pool[T]) Release(resource T, owner string) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: %w", p.id, core.ErrClosed)
	}
	id, ok := p.index[resource]
	var r *PooledResource[T]
	if ok {
		r = p.resources[id]
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("pool %s: released resource does not belong to the pool: %w", p.id, core.ErrNotFound)
	}

	held, err := r.markAvailable(owner)
	if err != nil {
		p.logger.Warn("Release rejected", "pool_id", p.id, "resource_id", id, "owner", owner, "error", err)
		return err
	}

	p.mu.Lock()
	if _, still := p.resources[id]; still && !p.closing {
		p.available[id] = struct{}{}
		p.broadcastLocked()
	}
	p.mu.Unlock()

	p.stats.releases.Add(1)
	p.stats.totalInUse.Add(int64(held))
	p.logger.Debug("Resource released", "pool_id", p.id, "resource_id", id, "held", held)
	p.autoScale(context.Background())

	return nil
}

// Use acquires a resource, passes it to fn and releases it afterwards, also
// when fn returns an error or panics.
func (p *Pool[T]) Use(ctx context.Context, owner string, timeout time.Duration, fn func(T) error) error {
	res, err := p.Acquire(ctx, owner, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := p.Release(res, owner); rerr != nil && !errors.Is(rerr, core.ErrClosed) {
			p.logger.Error("Release after use failed", "pool_id", p.id, "error", rerr)
		}
	}()
	return fn(res)
}

// ReportError marks a resource as broken. It leaves the pool immediately,
// whatever its state, and is disposed of through the cleanup chain; the freed
// capacity can be refilled by the next Acquire.
func (p *Pool[T]) ReportError(resource T, cause error) error {
	p.mu.Lock()
	id, ok := p.index[resource]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: reported resource does not belong to the pool: %w", p.id, core.ErrNotFound)
	}
	r := p.resources[id]
	p.removeLocked(id)
	p.broadcastLocked()
	p.mu.Unlock()

	r.markError()
	p.stats.errors.Add(1)
	p.logger.Warn("Resource reported broken", "pool_id", p.id, "resource_id", id, "error", cause)
	p.retire(context.Background(), r)

	return nil
}

// Close fails new and waiting acquires with core.ErrClosed and tears down
// every resource, including checked out ones, through the cleanup chain. All
// resources are attempted; failures are logged and combined into the returned
// error. Close is idempotent.
func (p *Pool[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	all := make([]*PooledResource[T], 0, len(p.resources))
	for _, r := range p.resources {
		all = append(all, r)
	}
	p.resources = make(map[string]*PooledResource[T])
	p.available = make(map[string]struct{})
	p.index = make(map[T]string)
	p.broadcastLocked()
	p.mu.Unlock()

	slices.SortFunc(all, func(a, b *PooledResource[T]) int { return cmp.Compare(a.ID, b.ID) })

	var errs error
	for _, r := range all {
		if prev := r.beginCleanup(); prev == StateInUse {
			p.logger.Warn("Closing resource still in use", "pool_id", p.id, "resource_id", r.ID, "owner", r.Owner())
		}
		if err := p.dispose(ctx, r); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	p.logger.Info("Pool closed", "pool_id", p.id, "resources", len(all), "failed", len(multierr.Errors(errs)))

	return errs
}

// Closed reports whether Close has been called.
func (p *Pool[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closing
}

// ResourceInfo describes one pooled resource.
type ResourceInfo struct {
	ID      string
	State   ResourceState
	Owner   string
	Metrics ResourceMetrics
}

// Resources returns a snapshot of every resource currently in the pool, sorted by id.
func (p *Pool[T]) Resources() []ResourceInfo {
	p.mu.Lock()
	all := make([]*PooledResource[T], 0, len(p.resources))
	for _, r := range p.resources {
		all = append(all, r)
	}
	p.mu.Unlock()

	out := make([]ResourceInfo, 0, len(all))
	for _, r := range all {
		out = append(out, ResourceInfo{ID: r.ID, State: r.State(), Owner: r.Owner(), Metrics: r.Metrics()})
	}
	slices.SortFunc(out, func(a, b ResourceInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// create runs the factory outside the pool lock.
func (p *Pool[T]) create(ctx context.Context) (*PooledResource[T], error) {
	var res T
	err := core.Recover(func() error {
		var ferr error
		res, ferr = p.factory(ctx)
		return ferr
	})
	if err != nil {
		p.stats.creationFailures.Add(1)
		return nil, &core.CreationError{Resource: p.id, Err: err}
	}

	// The identity index panics on values whose dynamic type is not comparable.
	var dup bool
	if err := core.Recover(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, dup = p.index[res]
		return nil
	}); err != nil {
		p.stats.creationFailures.Add(1)
		return nil, &core.CreationError{Resource: p.id, Err: fmt.Errorf("resource of type %T cannot be pooled: %w", res, err)}
	}
	if dup {
		p.stats.creationFailures.Add(1)
		return nil, &core.CreationError{Resource: p.id, Err: errors.New("factory returned an instance already in the pool")}
	}

	p.stats.created.Add(1)
	return newPooledResource(core.NewID(p.id), res, p.clock), nil
}

func (p *Pool[T]) addLocked(r *PooledResource[T]) {
	p.resources[r.ID] = r
	p.available[r.ID] = struct{}{}
	p.index[r.Resource] = r.ID
	p.broadcastLocked()
}

func (p *Pool[T]) removeLocked(id string) {
	if r, ok := p.resources[id]; ok {
		delete(p.index, r.Resource)
	}
	delete(p.resources, id)
	delete(p.available, id)
}

func (p *Pool[T]) takeAvailableLocked() (string, bool) {
	for id := range p.available {
		delete(p.available, id)
		return id, true
	}
	return "", false
}

func (p *Pool[T]) trackPeakLocked() {
	if inUse := len(p.resources) - len(p.available); inUse > p.peakInUse {
		p.peakInUse = inUse
	}
}

func (p *Pool[T]) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// retire hands r to the Retirer or disposes of it inline.
func (p *Pool[T]) retire(ctx context.Context, r *PooledResource[T]) {
	r.beginCleanup()
	if p.retirer != nil {
		err := p.retirer.Retire(r.ID, r.Resource, func(ctx context.Context, _ any) error {
			return p.dispose(ctx, r)
		})
		if err == nil {
			return
		}
		p.logger.Warn("Retirer rejected resource, disposing inline", "pool_id", p.id, "resource_id", r.ID, "error", err)
	}
	_ = p.dispose(ctx, r)
}

// dispose runs the cleanup chain: CleanupHook, then Close, Cleanup, Shutdown, Stop.
func (p *Pool[T]) dispose(ctx context.Context, r *PooledResource[T]) error {
	var custom core.DisposeFunc
	if p.cleanupHook != nil {
		custom = func(ctx context.Context, v any) error { return p.cleanupHook(ctx, v.(T)) }
	}

	found, err := core.Dispose(ctx, r.Resource, custom, core.PoolProbeOrder)
	r.markClosed()
	p.stats.destroyed.Add(1)

	if !found {
		p.logger.Warn("Resource has no cleanup method", "pool_id", p.id, "resource_id", r.ID)
	}
	if err != nil {
		p.stats.cleanupFailures.Add(1)
		p.logger.Error("Resource cleanup failed", "pool_id", p.id, "resource_id", r.ID, "error", err)
		return &core.CleanupError{ResourceID: r.ID, Err: err}
	}
	return nil
}
