package core

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// Tracker is a keyed registry of resources that are disposed of together.
// It is safe for concurrent access. Resources are disposed of in reverse
// tracking order so that later resources, which may depend on earlier ones,
// go first.
type Tracker struct {
	mu    sync.Mutex
	items map[string]trackedItem
	seq   uint64
	order []Probe
}

type trackedItem struct {
	resource any
	dispose  DisposeFunc
	seq      uint64
}

// NewTracker constructs an empty tracker using SchedulerProbeOrder.
func NewTracker() *Tracker {
	return &Tracker{items: make(map[string]trackedItem), order: SchedulerProbeOrder}
}

// Track registers resource under id, replacing any previous entry. dispose may be nil.
func (t *Tracker) Track(id string, resource any, dispose DisposeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.items[id] = trackedItem{resource: resource, dispose: dispose, seq: t.seq}
}

// Untrack removes id without disposing of it and reports whether it was present.
func (t *Tracker) Untrack(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.items[id]
	delete(t.items, id)
	return ok
}

// Len returns the number of tracked resources.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// CleanupAll disposes of every tracked resource and empties the tracker.
// Every item is attempted; failures are combined into a single error.
func (t *Tracker) CleanupAll(ctx context.Context) error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.items))
	items := t.items
	for id := range items {
		ids = append(ids, id)
	}
	t.items = make(map[string]trackedItem)
	t.mu.Unlock()

	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(items[b].seq, items[a].seq) })

	var errs error
	for _, id := range ids {
		it := items[id]
		if _, err := Dispose(ctx, it.resource, it.dispose, t.order); err != nil {
			errs = multierr.Append(errs, &CleanupError{ResourceID: id, Err: err})
		}
	}
	return errs
}
