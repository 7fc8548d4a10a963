package cleanup

import (
	"cmp"
	"container/heap"
	"time"

	"github.com/hupe1980/resourcekit/core"
)

// target resolves the resource at execution time. The boolean is false when
// the resource has been collected.
type target func() (any, bool)

// entry is one pending cleanup.
type entry struct {
	resourceID string
	dueTime    time.Time
	priority   int
	target     target
	cleanupFn  core.DisposeFunc
	liveness   *core.Liveness
	budget     *core.RetryBudget
	weak       bool

	seq   uint64
	index int
}

// ScheduledCleanup is a snapshot of a queued cleanup.
type ScheduledCleanup struct {
	ResourceID string
	DueTime    time.Time
	Priority   int
	RetryCount int
	MaxRetries int
	Weak       bool
}

func (e *entry) snapshot() ScheduledCleanup {
	return ScheduledCleanup{
		ResourceID: e.resourceID,
		DueTime:    e.dueTime,
		Priority:   e.priority,
		RetryCount: e.budget.Used(),
		MaxRetries: e.budget.Max(),
		Weak:       e.weak,
	}
}

// entryHeap orders entries by due time, then priority descending, then schedule order.
type entryHeap []*entry

var _ heap.Interface = (*entryHeap)(nil)

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return compareEntries(h[i], h[j]) < 0 }

func compareEntries(a, b *entry) int {
	if c := a.dueTime.Compare(b.dueTime); c != 0 {
		return c
	}
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
