package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/resourcekit/core"
)

// ResourceState is the lifecycle state of a pooled resource.
type ResourceState int

const (
	// StateAvailable marks an idle resource that may be acquired.
	StateAvailable ResourceState = iota
	// StateInUse marks a resource checked out by an owner.
	StateInUse
	// StateError marks a resource reported as broken. It is removed from the pool.
	StateError
	// StateCleaningUp marks a resource whose cleanup chain is running.
	StateCleaningUp
	// StateClosed is terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s ResourceState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateInUse:
		return "in_use"
	case StateError:
		return "error"
	case StateCleaningUp:
		return "cleaning_up"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ResourceMetrics is a read-only snapshot of a single resource's usage.
type ResourceMetrics struct {
	Acquisitions int64
	TotalInUse   time.Duration
	PeakInUse    time.Duration
	Errors       int64
	CreatedAt    time.Time
	LastAcquired time.Time
	LastReleased time.Time
}

// PooledResource wraps one resource instance owned by a Pool.
type PooledResource[T any] struct {
	ID       string
	Resource T

	clock clock.Clock

	mu         sync.Mutex
	state      ResourceState
	owner      string
	acquiredAt time.Time
	metrics    ResourceMetrics
}

func newPooledResource[T any](id string, res T, clk clock.Clock) *PooledResource[T] {
	return &PooledResource[T]{
		ID:       id,
		Resource: res,
		clock:    clk,
		state:    StateAvailable,
		metrics:  ResourceMetrics{CreatedAt: clk.Now()},
	}
}

// State returns the current state.
func (r *PooledResource[T]) State() ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Owner returns the owner tag of the current checkout, if any.
func (r *PooledResource[T]) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Metrics returns a snapshot of the usage metrics.
func (r *PooledResource[T]) Metrics() ResourceMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

func (r *PooledResource[T]) markInUse(owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateAvailable {
		return fmt.Errorf("resource %s is %s: %w", r.ID, r.state, core.ErrUnavailable)
	}
	now := r.clock.Now()
	r.state = StateInUse
	r.owner = owner
	r.acquiredAt = now
	r.metrics.Acquisitions++
	r.metrics.LastAcquired = now
	return nil
}

// markAvailable ends a checkout and returns how long the resource was held.
// An empty owner releases regardless of the tag set at acquire time.
func (r *PooledResource[T]) markAvailable(owner string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInUse {
		return 0, fmt.Errorf("release of resource %s in state %s: %w", r.ID, r.state, core.ErrOwnership)
	}
	if owner != "" && r.owner != "" && owner != r.owner {
		return 0, fmt.Errorf("resource %s is owned by %q, not %q: %w", r.ID, r.owner, owner, core.ErrOwnership)
	}
	now := r.clock.Now()
	held := now.Sub(r.acquiredAt)
	r.state = StateAvailable
	r.owner = ""
	r.acquiredAt = time.Time{}
	r.metrics.TotalInUse += held
	if held > r.metrics.PeakInUse {
		r.metrics.PeakInUse = held
	}
	r.metrics.LastReleased = now
	return held, nil
}

func (r *PooledResource[T]) markError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.state = StateError
	r.owner = ""
	r.metrics.Errors++
}

// beginCleanup moves the resource to StateCleaningUp and returns the state it left.
func (r *PooledResource[T]) beginCleanup() ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.state
	if prev != StateClosed {
		r.state = StateCleaningUp
	}
	return prev
}

func (r *PooledResource[T]) markClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateClosed
	r.owner = ""
}
