package cleanup

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/resourcekit/core"
	"github.com/hupe1980/resourcekit/logging"
	"github.com/hupe1980/resourcekit/pool"
)

// Scheduler runs deferred cleanups. It is safe for concurrent use.
type Scheduler struct {
	cfg    Config
	logger logging.Logger
	clock  clock.Clock
	sem    *semaphore.Weighted

	// ctx is handed to cleanup functions and cancelled once Shutdown gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   entryHeap
	pending map[string]*entry
	active  map[string]struct{}
	seq     uint64
	started bool
	closed  bool
	changed chan struct{}

	wake     chan struct{}
	stop     chan struct{}
	loopDone chan struct{}
	tasks    sync.WaitGroup

	stats counters
}

var _ pool.Retirer = (*Scheduler)(nil)

// New creates a scheduler. The loop goroutine starts with the first Schedule call.
func New(optFns ...func(o *Options)) (*Scheduler, error) {
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

	return &Scheduler{
		cfg:      opts.Config,
		logger:   logging.OrNoOp(opts.Logger),
		clock:    opts.Clock,
		sem:      semaphore.NewWeighted(int64(opts.Config.MaxConcurrentCleanups)),
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*entry),
		active:   make(map[string]struct{}),
		changed:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Schedule queues a cleanup of resource and returns its resource id. The
// resource is held strongly until the cleanup ran or was cancelled; use
// WithLiveness or ScheduleWeak to let it go earlier.
func (s *Scheduler) Schedule(resource any, optFns ...func(o *ScheduleOptions)) (string, error) {
	return s.schedule(func() (any, bool) { return resource, true }, false, optFns)
}

// Retire hands an idle pool resource to the scheduler for immediate cleanup.
func (s *Scheduler) Retire(id string, resource any, dispose core.DisposeFunc) error {
	_, err := s.Schedule(resource, WithResourceID(id), WithCleanupFunc(dispose))
	return err
}

func (s *Scheduler) schedule(t target, weak bool, optFns []func(o *ScheduleOptions)) (string, error) {
	opts := ScheduleOptions{MaxRetries: -1}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = s.cfg.DefaultMaxRetries
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.ResourceID == "" {
		opts.ResourceID = core.NewID("cleanup")
	}

	due := s.clock.Now().Add(opts.Delay)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("schedule %s: %w", opts.ResourceID, core.ErrClosed)
	}

	if e, ok := s.pending[opts.ResourceID]; ok {
		e.dueTime = due
		e.priority = opts.Priority
		e.target = t
		e.weak = weak
		e.cleanupFn = opts.CleanupFunc
		e.liveness = opts.Liveness
		e.budget = core.NewRetryBudget(opts.MaxRetries)
		heap.Fix(&s.queue, e.index)
		s.mu.Unlock()

		s.stats.rescheduled.Add(1)
		s.logger.Debug("Cleanup rescheduled", "resource_id", opts.ResourceID, "due", due, "priority", opts.Priority)
		s.signal()
		return opts.ResourceID, nil
	}

	s.seq++
	e := &entry{
		resourceID: opts.ResourceID,
		dueTime:    due,
		priority:   opts.Priority,
		target:     t,
		weak:       weak,
		cleanupFn:  opts.CleanupFunc,
		liveness:   opts.Liveness,
		budget:     core.NewRetryBudget(opts.MaxRetries),
		seq:        s.seq,
	}
	heap.Push(&s.queue, e)
	s.pending[e.resourceID] = e
	s.startLocked()
	s.mu.Unlock()

	s.stats.scheduled.Add(1)
	s.logger.Debug("Cleanup scheduled", "resource_id", e.resourceID, "delay", opts.Delay, "priority", opts.Priority, "max_retries", opts.MaxRetries)
	s.signal()

	return e.resourceID, nil
}

// Cancel removes a pending cleanup. It returns false when id is not pending,
// including when its cleanup is already running.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.pending[id]
	if ok {
		s.removeLocked(e)
		s.broadcastLocked()
	}
	s.mu.Unlock()

	if ok {
		s.stats.cancelled.Add(1)
		s.logger.Debug("Cleanup cancelled", "resource_id", id)
	}
	return ok
}

// CancelAll removes every pending cleanup and returns how many were removed.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	n := s.clearLocked()
	s.mu.Unlock()

	s.stats.cancelled.Add(int64(n))
	return n
}

// Flush makes every pending cleanup due now, including retries queued while
// flushing, and waits until nothing is pending or running.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 && len(s.active) == 0 {
			s.mu.Unlock()
			return nil
		}
		now := s.clock.Now()
		for _, e := range s.queue {
			if e.dueTime.After(now) {
				e.dueTime = now
			}
		}
		heap.Init(&s.queue)
		s.startLocked()
		changed := s.changed
		s.mu.Unlock()

		s.signal()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops the loop, cancels everything pending and waits for running
// cleanups. When ctx expires first the context handed to running cleanups is
// cancelled and ctx.Err() is returned. Shutdown is idempotent.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	n := s.clearLocked()
	started := s.started
	s.mu.Unlock()

	s.stats.cancelled.Add(int64(n))
	close(s.stop)
	if started {
		<-s.loopDone
	}

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	defer s.cancel()

	select {
	case <-done:
		s.logger.Info("Cleanup scheduler stopped", "cancelled", n)
		return nil
	case <-ctx.Done():
		s.logger.Warn("Cleanup scheduler stopped with cleanups still running", "error", ctx.Err())
		return ctx.Err()
	}
}

// Pending returns a snapshot of the queued cleanups in execution order.
func (s *Scheduler) Pending() []ScheduledCleanup {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := slices.Clone(s.queue)
	slices.SortFunc(ordered, compareEntries)

	out := make([]ScheduledCleanup, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, e.snapshot())
	}
	return out
}

// IsPending reports whether a cleanup is queued under id.
func (s *Scheduler) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending, active := len(s.pending), len(s.active)
	s.mu.Unlock()

	return Stats{
		Scheduled:   s.stats.scheduled.Load(),
		Rescheduled: s.stats.rescheduled.Load(),
		Executed:    s.stats.executed.Load(),
		Succeeded:   s.stats.succeeded.Load(),
		Failed:      s.stats.failed.Load(),
		Retried:     s.stats.retried.Load(),
		Dropped:     s.stats.dropped.Load(),
		Skipped:     s.stats.skipped.Load(),
		Cancelled:   s.stats.cancelled.Load(),
		NoOp:        s.stats.noop.Load(),
		Pending:     pending,
		Active:      active,
	}
}

func (s *Scheduler) startLocked() {
	if s.started || s.closed {
		return
	}
	s.started = true
	go s.run()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.loopDone)

	s.logger.Debug("Cleanup loop started")
	for {
		wait := s.dispatch()

		timer := s.clock.Timer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			s.logger.Debug("Cleanup loop stopped")
			return
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// dispatch starts every due entry that has a free slot and whose resource id
// is not already running. It returns how long the loop may sleep.
func (s *Scheduler) dispatch() time.Duration {
	now := s.clock.Now()

	s.mu.Lock()
	var (
		ready    []*entry
		deferred []*entry
	)
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.dueTime.After(now) {
			break
		}
		if _, busy := s.active[next.resourceID]; busy {
			deferred = append(deferred, heap.Pop(&s.queue).(*entry))
			continue
		}
		if !s.sem.TryAcquire(1) {
			break
		}
		heap.Pop(&s.queue)
		delete(s.pending, next.resourceID)
		s.active[next.resourceID] = struct{}{}
		ready = append(ready, next)
	}
	for _, e := range deferred {
		heap.Push(&s.queue, e)
	}

	wait := s.cfg.CheckInterval
	if s.queue.Len() > 0 {
		if until := s.queue[0].dueTime.Sub(now); until > 0 && until < wait {
			wait = until
		}
	}
	s.tasks.Add(len(ready))
	s.mu.Unlock()

	for _, e := range ready {
		go s.execute(e)
	}
	return wait
}

func (s *Scheduler) execute(e *entry) {
	defer s.tasks.Done()

	retry := s.attempt(e)
	s.sem.Release(1)
	s.finish(e.resourceID, retry)
}

// attempt runs one cleanup attempt and returns e when it must be retried.
func (s *Scheduler) attempt(e *entry) *entry {
	resource, ok := e.target()
	if !ok || !e.liveness.Alive() {
		s.stats.skipped.Add(1)
		s.logger.Debug("Cleanup target gone, skipping", "resource_id", e.resourceID)
		return nil
	}

	attempt := e.budget.Used() + 1
	start := s.clock.Now()
	found, err := core.Dispose(s.ctx, resource, e.cleanupFn, core.SchedulerProbeOrder)
	elapsed := s.clock.Since(start)

	if !found {
		s.stats.noop.Add(1)
		s.logger.Warn("Resource has no cleanup method", "resource_id", e.resourceID, "type", fmt.Sprintf("%T", resource))
		return nil
	}

	s.stats.executed.Add(1)
	if cl, ok := s.logger.(logging.CleanupLogger); ok {
		cl.LogCleanup(e.resourceID, attempt, elapsed, err)
	}
	if err == nil {
		s.stats.succeeded.Add(1)
		s.logger.Debug("Cleanup completed", "resource_id", e.resourceID, "attempt", attempt, "duration", elapsed)
		return nil
	}

	s.stats.failed.Add(1)
	if berr := e.budget.Consume(); berr != nil {
		s.stats.dropped.Add(1)
		s.logger.Error("Cleanup failed permanently", "resource_id", e.resourceID, "attempts", attempt, "error", err)
		return nil
	}

	s.stats.retried.Add(1)
	s.logger.Warn("Cleanup failed, retrying", "resource_id", e.resourceID, "attempt", attempt, "retry_in", s.cfg.RetryDelay, "error", err)
	e.dueTime = s.clock.Now().Add(s.cfg.RetryDelay)
	return e
}

// finish clears the active mark of id and re-queues retry when given. A retry
// is dropped when the scheduler closed or a newer request for the same id is
// already pending.
func (s *Scheduler) finish(id string, retry *entry) {
	s.mu.Lock()
	delete(s.active, id)
	if retry != nil && !s.closed {
		if _, exists := s.pending[id]; !exists {
			s.seq++
			retry.seq = s.seq
			heap.Push(&s.queue, retry)
			s.pending[id] = retry
		}
	}
	s.broadcastLocked()
	s.mu.Unlock()

	s.signal()
}

func (s *Scheduler) removeLocked(e *entry) {
	heap.Remove(&s.queue, e.index)
	delete(s.pending, e.resourceID)
}

func (s *Scheduler) clearLocked() int {
	n := len(s.queue)
	for _, e := range s.queue {
		e.index = -1
	}
	s.queue = nil
	s.pending = make(map[string]*entry)
	if n > 0 {
		s.broadcastLocked()
	}
	return n
}

func (s *Scheduler) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
