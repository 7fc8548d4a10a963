package cleanup

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// DelayedContext hands a resource to a scheduler when the scope that uses it
// ends. Exit schedules the cleanup exactly once no matter how often it is
// called, so it can be deferred unconditionally.
type DelayedContext[T any] struct {
	s        *Scheduler
	resource T
	optFns   []func(o *ScheduleOptions)

	once sync.Once
	id   string
	err  error
}

// NewDelayedContext wraps resource for scoped use.
func NewDelayedContext[T any](s *Scheduler, resource T, optFns ...func(o *ScheduleOptions)) *DelayedContext[T] {
	return &DelayedContext[T]{s: s, resource: resource, optFns: optFns}
}

// Enter returns the wrapped resource.
func (d *DelayedContext[T]) Enter() T { return d.resource }

// Exit schedules the cleanup and returns its resource id.
func (d *DelayedContext[T]) Exit() (string, error) {
	d.once.Do(func() {
		d.id, d.err = d.s.Schedule(d.resource, d.optFns...)
	})
	return d.id, d.err
}

// Using runs fn with resource and schedules its cleanup afterwards, also when
// fn fails or panics. A scheduling failure is combined with fn's error.
func Using[T any](s *Scheduler, resource T, fn func(T) error, optFns ...func(o *ScheduleOptions)) (err error) {
	dc := NewDelayedContext(s, resource, optFns...)
	defer func() {
		if _, serr := dc.Exit(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("schedule cleanup: %w", serr))
		}
	}()
	return fn(dc.Enter())
}
