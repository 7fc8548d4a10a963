package testutil

import (
	"context"
	"sync"
	"time"
)

// CallCounter records invocations of a cleanup or initializer callback.
type CallCounter struct {
	mu    sync.Mutex
	times []time.Time
	args  []any
	err   error
}

// NewCallCounter creates a counter whose callbacks return err.
func NewCallCounter(err error) *CallCounter { return &CallCounter{err: err} }

// Dispose matches core.DisposeFunc.
func (c *CallCounter) Dispose(_ context.Context, resource any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times = append(c.times, time.Now())
	c.args = append(c.args, resource)
	return c.err
}

// Calls returns how many times the callback ran.
func (c *CallCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.times)
}

// Args returns the resources passed to the callback in call order.
func (c *CallCounter) Args() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.args...)
}

// Times returns the call timestamps.
func (c *CallCounter) Times() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.times...)
}
