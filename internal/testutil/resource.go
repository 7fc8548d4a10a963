package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("injected failure")

// FakeResource is a disposable resource that counts Close calls.
// Example:
//
//	f := NewFakeFactory()
//	r, _ := f.New(ctx)
//	_ = r.Close()
//	r.Closed() // 1
type FakeResource struct {
	Seq      int64
	closed   atomic.Int32
	closeErr error
}

// Close records the call and returns the configured error.
func (r *FakeResource) Close() error {
	r.closed.Add(1)
	return r.closeErr
}

// Closed returns how many times Close was called.
func (r *FakeResource) Closed() int { return int(r.closed.Load()) }

// FakeFactory produces FakeResources and supports injected failures and delays.
type FakeFactory struct {
	mu        sync.Mutex
	seq       int64
	failNext  int
	failErr   error
	closeErr  error
	delay     time.Duration
	resources []*FakeResource
	calls     int
}

// NewFakeFactory creates a factory with no injected failures.
func NewFakeFactory() *FakeFactory { return &FakeFactory{} }

// FailNext makes the next n calls return err (ErrInjected if nil).
func (f *FakeFactory) FailNext(n int, err error) *FakeFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failNext, f.failErr = n, err
	return f
}

// CloseError makes every produced resource fail on Close (chainable).
func (f *FakeFactory) CloseError(err error) *FakeFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
	return f
}

// Delay makes every call sleep for d before returning (chainable).
func (f *FakeFactory) Delay(d time.Duration) *FakeFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// New is a pool factory.
func (f *FakeFactory) New(ctx context.Context) (*FakeResource, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	if f.failNext > 0 {
		f.failNext--
		err := f.failErr
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r := &FakeResource{Seq: f.seq, closeErr: f.closeErr}
	f.resources = append(f.resources, r)
	return r, nil
}

// Created returns the number of successfully created resources.
func (f *FakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources)
}

// Calls returns the number of factory invocations including failures.
func (f *FakeFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Resources returns a copy of all created resources in creation order.
func (f *FakeFactory) Resources() []*FakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeResource(nil), f.resources...)
}

// ClosedCount returns how many created resources were closed at least once.
func (f *FakeFactory) ClosedCount() int {
	n := 0
	for _, r := range f.Resources() {
		if r.Closed() > 0 {
			n++
		}
	}
	return n
}
