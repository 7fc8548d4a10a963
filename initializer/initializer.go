package initializer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
)

// Initializer runs registered InitFuncs. It is safe for concurrent use.
type Initializer struct {
	cfg    Config
	logger logging.Logger
	clock  clock.Clock
	sem    *semaphore.Weighted
	group  singleflight.Group

	// ctx is handed to InitFuncs so that Close can stop them.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	records     map[string]*record
	queue       []*record
	seq         uint64
	completions uint64
	enabled     bool
	running     bool
	closed      bool
	timers      map[string]*clock.Timer

	wake     chan struct{}
	loops    sync.WaitGroup
	inflight sync.WaitGroup

	attempts atomic.Int64
	failures atomic.Int64
}

// New creates an initializer.
func New(optFns ...func(o *Options)) (*Initializer, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
		Clock:  clock.New(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Initializer{
		cfg:     opts.Config,
		logger:  logging.OrNoOp(opts.Logger),
		clock:   opts.Clock,
		sem:     semaphore.NewWeighted(int64(opts.Config.MaxConcurrentInitializations)),
		ctx:     ctx,
		cancel:  cancel,
		records: make(map[string]*record),
		timers:  make(map[string]*clock.Timer),
		enabled: opts.Config.AutoStart,
		wake:    make(chan struct{}, 1),
	}, nil
}

// Config returns the initializer configuration.
func (in *Initializer) Config() Config { return in.cfg }

// Register adds an initialization. It fails with core.ErrAlreadyRegistered for
// a known name and with core.ErrCircularDependency when name is reachable
// from its own dependencies. Dependencies do not have to be registered yet.
func (in *Initializer) Register(name string, fn InitFunc, priority int, deps ...string) error {
	if fn == nil {
		return fmt.Errorf("register %s: nil init func: %w", name, core.ErrInvalidConfig)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return fmt.Errorf("register %s: %w", name, core.ErrClosed)
	}
	if _, exists := in.records[name]; exists {
		return fmt.Errorf("register %s: %w", name, core.ErrAlreadyRegistered)
	}
	if path, ok := in.cycleLocked(name, deps); ok {
		return fmt.Errorf("register %s: %v: %w", name, path, core.ErrCircularDependency)
	}

	in.seq++
	rec := &record{
		name:         name,
		fn:           fn,
		priority:     priority,
		deps:         slices.Clone(deps),
		seq:          in.seq,
		state:        statePending,
		done:         make(chan struct{}),
		registeredAt: in.clock.Now(),
	}
	in.records[name] = rec
	in.enqueueLocked(rec)
	in.startLocked()

	in.logger.Debug("Initialization registered", "name", name, "priority", priority, "dependencies", deps)
	in.signal()

	return nil
}

// cycleLocked walks the dependency graph depth first from deps and reports
// the path back to name when there is one.
func (in *Initializer) cycleLocked(name string, deps []string) ([]string, bool) {
	visited := make(map[string]bool)

	var visit func(n string, path []string) ([]string, bool)
	visit = func(n string, path []string) ([]string, bool) {
		path = append(path, n)
		if n == name {
			return path, true
		}
		if visited[n] {
			return nil, false
		}
		visited[n] = true
		if rec, ok := in.records[n]; ok {
			for _, d := range rec.deps {
				if p, found := visit(d, path); found {
					return p, true
				}
			}
		}
		return nil, false
	}

	for _, d := range deps {
		if p, found := visit(d, []string{name}); found {
			return p, true
		}
	}
	return nil, false
}

// enqueueLocked inserts rec by priority descending, registration order among equals.
func (in *Initializer) enqueueLocked(rec *record) {
	if rec.queued {
		return
	}
	i, _ := slices.BinarySearchFunc(in.queue, rec, compareRecords)
	in.queue = slices.Insert(in.queue, i, rec)
	rec.queued = true
}

func (in *Initializer) dequeueLocked(rec *record) {
	if !rec.queued {
		return
	}
	if i := slices.Index(in.queue, rec); i >= 0 {
		in.queue = slices.Delete(in.queue, i, i+1)
	}
	rec.queued = false
}

func compareRecords(a, b *record) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Start enables the background loop. It is a no-op when the loop is already
// enabled.
func (in *Initializer) Start() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.enabled = true
	in.startLocked()
}

func (in *Initializer) startLocked() {
	if !in.enabled || in.running || in.closed || len(in.queue) == 0 {
		return
	}
	in.running = true
	in.loops.Add(1)
	go in.run()
}

func (in *Initializer) signal() {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

func (in *Initializer) run() {
	defer in.loops.Done()

	for {
		in.mu.Lock()
		if in.closed || len(in.queue) == 0 {
			in.running = false
			in.mu.Unlock()
			return
		}
		rec := in.nextEligibleLocked()
		if rec != nil {
			in.dequeueLocked(rec)
			in.inflight.Add(1)
		}
		in.mu.Unlock()

		if rec != nil {
			go func() {
				defer in.inflight.Done()
				_, _ = in.initialize(rec)
			}()
			continue
		}

		timer := in.clock.Timer(in.cfg.PollInterval)
		select {
		case <-in.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// nextEligibleLocked returns the first queued record whose dependencies are
// all initialized, unregistered or permanently failed.
func (in *Initializer) nextEligibleLocked() *record {
	for _, rec := range in.queue {
		if in.settledLocked(rec.deps) {
			return rec
		}
	}
	return nil
}

func (in *Initializer) settledLocked(deps []string) bool {
	for _, d := range deps {
		dep, ok := in.records[d]
		if !ok {
			continue
		}
		if dep.state != stateInitialized && dep.state != stateFailed {
			return false
		}
	}
	return true
}

// initialize runs one attempt for rec unless another caller already does.
func (in *Initializer) initialize(rec *record) (any, error) {
	v, err, _ := in.group.Do(rec.name, func() (any, error) {
		return in.attempt(rec)
	})
	return v, err
}

func (in *Initializer) attempt(rec *record) (any, error) {
	in.mu.Lock()
	switch {
	case in.closed:
		in.mu.Unlock()
		return nil, fmt.Errorf("initialize %s: %w", rec.name, core.ErrClosed)
	case rec.state != statePending && rec.state != stateRetrying:
		v, err := rec.value, rec.err
		in.mu.Unlock()
		return v, err
	}
	if t, ok := in.timers[rec.name]; ok {
		t.Stop()
		delete(in.timers, rec.name)
	}
	in.dequeueLocked(rec)
	in.inflight.Add(1)
	defer in.inflight.Done()
	rec.state = stateInitializing
	rec.attempts++
	rec.startedAt = in.clock.Now()
	if rec.doneClosed {
		rec.done = make(chan struct{})
		rec.doneClosed = false
	}
	attempt := rec.attempts
	in.mu.Unlock()

	in.logger.Debug("Initializing", "name", rec.name, "attempt", attempt)
	start := in.clock.Now()

	v, err := in.invoke(rec)
	err = in.complete(rec, v, err)

	if il, ok := in.logger.(logging.InitializationLogger); ok {
		il.LogInitialization(rec.name, in.clock.Since(start), err)
	}

	if err != nil {
		in.logger.Warn("Initialization failed", "name", rec.name, "attempt", attempt, "duration", in.clock.Since(start), "error", err)
		return nil, err
	}
	in.logger.Info("Initialized", "name", rec.name, "attempt", attempt, "duration", in.clock.Since(start))
	return v, nil
}

// invoke resolves the dependencies of rec and calls its InitFunc on a free slot.
func (in *Initializer) invoke(rec *record) (any, error) {
	for _, d := range rec.deps {
		if !in.has(d) {
			in.logger.Warn("Dependency not registered, ignoring", "name", rec.name, "dependency", d)
			continue
		}
		if _, err := in.Get(in.ctx, d); err != nil {
			return nil, fmt.Errorf("initialize %s: dependency %s: %w", rec.name, d, err)
		}
	}

	if err := in.sem.Acquire(in.ctx, 1); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", rec.name, err)
	}
	defer in.sem.Release(1)

	in.attempts.Add(1)

	var v any
	err := core.Recover(func() error {
		var ferr error
		v, ferr = rec.fn(in.ctx)
		return ferr
	})
	if err != nil {
		return nil, &core.CreationError{Resource: rec.name, Err: err}
	}
	return v, nil
}

// complete publishes the outcome of an attempt. A value produced after Close
// is disposed of here instead, since Close no longer sees it.
func (in *Initializer) complete(rec *record, v any, err error) error {
	in.mu.Lock()
	orphan := err == nil && in.closed
	if orphan {
		err = fmt.Errorf("initialize %s: %w", rec.name, core.ErrClosed)
	}

	rec.completedAt = in.clock.Now()
	if err == nil {
		in.completions++
		rec.completion = in.completions
		rec.state = stateInitialized
		rec.value = v
		rec.err = nil
	} else {
		if !orphan {
			in.failures.Add(1)
		}
		rec.err = err
		if in.closed || (in.cfg.MaxAttempts > 0 && rec.attempts >= in.cfg.MaxAttempts) {
			rec.state = stateFailed
		} else {
			rec.state = stateRetrying
			in.scheduleRetryLocked(rec)
		}
	}

	close(rec.done)
	rec.doneClosed = true
	in.signal()
	in.mu.Unlock()

	if orphan {
		if _, derr := core.Dispose(context.Background(), v, nil, core.SchedulerProbeOrder); derr != nil {
			in.logger.Error("Disposing value initialized after close failed", "name", rec.name, "error", derr)
		}
	}
	return err
}

func (in *Initializer) scheduleRetryLocked(rec *record) {
	in.timers[rec.name] = in.clock.AfterFunc(in.cfg.RetryDelay, func() {
		in.mu.Lock()
		defer in.mu.Unlock()

		delete(in.timers, rec.name)
		if in.closed || rec.state != stateRetrying {
			return
		}
		rec.state = statePending
		in.enqueueLocked(rec)
		in.startLocked()
		in.signal()
	})
}

// Get returns the value registered under name, waiting for an in-flight
// initialization and otherwise starting one right away, also for a name
// waiting for its retry. A permanently failed name returns its last error.
// Unknown names yield core.ErrNotFound.
func (in *Initializer) Get(ctx context.Context, name string) (any, error) {
	for counted := false; ; counted = true {
		in.mu.Lock()
		rec, ok := in.records[name]
		if !ok {
			in.mu.Unlock()
			return nil, fmt.Errorf("get %s: %w", name, core.ErrNotFound)
		}
		if in.closed {
			in.mu.Unlock()
			return nil, fmt.Errorf("get %s: %w", name, core.ErrClosed)
		}
		if !counted {
			rec.accessCount++
			rec.lastAccess = in.clock.Now()
		}
		st, v, err, done := rec.state, rec.value, rec.err, rec.done
		in.mu.Unlock()

		switch st {
		case stateInitialized:
			return v, nil
		case stateFailed:
			return nil, err
		case stateInitializing:
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ch := in.group.DoChan(name, func() (any, error) { return in.attempt(rec) })
		select {
		case res := <-ch:
			return res.Val, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryGet returns the value registered under name without blocking. It fails
// with core.ErrStillInitializing while an attempt runs and with
// core.ErrNotInitialized before the first attempt or after a failed one.
func (in *Initializer) TryGet(name string) (any, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rec, ok := in.records[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, core.ErrNotFound)
	}
	rec.accessCount++
	rec.lastAccess = in.clock.Now()

	switch rec.state {
	case stateInitialized:
		return rec.value, nil
	case stateInitializing:
		return nil, fmt.Errorf("get %s: %w", name, core.ErrStillInitializing)
	case stateRetrying, stateFailed:
		return nil, fmt.Errorf("get %s: %w: %w", name, core.ErrNotInitialized, rec.err)
	default:
		return nil, fmt.Errorf("get %s: %w", name, core.ErrNotInitialized)
	}
}

// Resource is Get with a type assertion.
func Resource[T any](ctx context.Context, in *Initializer, name string) (T, error) {
	var zero T
	v, err := in.Get(ctx, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("get %s: value is %T, not %T", name, v, zero)
	}
	return t, nil
}

// InitializeAll initializes every registered name and waits for the results.
// All names are attempted; failures are combined into the returned error.
func (in *Initializer) InitializeAll(ctx context.Context) error {
	return in.initializeWhere(ctx, func(*record) bool { return true })
}

// InitializePriority initializes every name with a priority of at least min.
func (in *Initializer) InitializePriority(ctx context.Context, min int) error {
	return in.initializeWhere(ctx, func(r *record) bool { return r.priority >= min })
}

func (in *Initializer) initializeWhere(ctx context.Context, match func(*record) bool) error {
	in.mu.Lock()
	recs := make([]*record, 0, len(in.records))
	for _, r := range in.records {
		if match(r) {
			recs = append(recs, r)
		}
	}
	in.mu.Unlock()
	slices.SortFunc(recs, compareRecords)

	var (
		mu   sync.Mutex
		errs error
	)

	g := new(errgroup.Group)
	g.SetLimit(in.cfg.MaxConcurrentInitializations)
	for _, r := range recs {
		g.Go(func() error {
			if _, err := in.Get(ctx, r.name); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// IsInitialized reports whether name holds a value.
func (in *Initializer) IsInitialized(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	rec, ok := in.records[name]
	return ok && rec.state == stateInitialized
}

// Status returns the state of name.
func (in *Initializer) Status(name string) (Status, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	rec, ok := in.records[name]
	if !ok {
		return Status{}, fmt.Errorf("status %s: %w", name, core.ErrNotFound)
	}
	return rec.status(), nil
}

// Statuses returns the state of every registered name in queue order.
func (in *Initializer) Statuses() []Status {
	in.mu.Lock()
	recs := make([]*record, 0, len(in.records))
	for _, r := range in.records {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, compareRecords)

	out := make([]Status, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.status())
	}
	in.mu.Unlock()

	return out
}

// Stats aggregates the state of every registered name.
func (in *Initializer) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()

	s := Stats{
		Registered: len(in.records),
		Attempts:   in.attempts.Load(),
		Failures:   in.failures.Load(),
	}
	for _, r := range in.records {
		switch r.state {
		case statePending:
			s.Pending++
		case stateInitializing:
			s.Initializing++
		case stateInitialized:
			s.Initialized++
		case stateRetrying:
			s.Retrying++
		case stateFailed:
			s.Failed++
		}
	}
	return s
}

// Close stops the loop, cancels and waits for running initializations, including
// those started by Get, and disposes of
// every initialized value in reverse completion order through its Cleanup,
// Close, Shutdown or Stop method. Close is idempotent.
func (in *Initializer) Close(ctx context.Context) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	for name, t := range in.timers {
		t.Stop()
		delete(in.timers, name)
	}
	in.mu.Unlock()

	in.signal()
	in.cancel()

	done := make(chan struct{})
	go func() {
		in.loops.Wait()
		in.inflight.Wait()
		close(done)
	}()

	var errs error
	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("waiting for initializations: %w", ctx.Err()))
	}

	in.mu.Lock()
	var initialized []*record
	for _, r := range in.records {
		if r.state == stateInitialized {
			initialized = append(initialized, r)
		}
	}
	in.mu.Unlock()

	slices.SortFunc(initialized, func(a, b *record) int { return cmp.Compare(b.completion, a.completion) })

	for _, r := range initialized {
		found, err := core.Dispose(ctx, r.value, nil, core.SchedulerProbeOrder)
		switch {
		case err != nil:
			in.logger.Error("Disposing initialized value failed", "name", r.name, "error", err)
			errs = multierr.Append(errs, &core.CleanupError{ResourceID: r.name, Err: err})
		case found:
			in.logger.Debug("Disposed initialized value", "name", r.name)
		}
	}

	in.logger.Info("Initializer closed", "disposed", len(initialized))
	return errs
}

func (in *Initializer) has(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.records[name]
	return ok
}
