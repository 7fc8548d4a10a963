package core

import (
	"context"
	"io"
)

// Cleanable is the single capability a disposable resource exposes.
type Cleanable interface {
	Dispose(ctx context.Context) error
}

// DisposeFunc is a cleanup callback receiving the resource it disposes of.
type DisposeFunc func(ctx context.Context, resource any) error

// CleanableFunc adapts a plain function to Cleanable.
type CleanableFunc func(ctx context.Context) error

// Dispose calls f(ctx).
func (f CleanableFunc) Dispose(ctx context.Context) error { return f(ctx) }

// Probe names one legacy disposal shape recognised by Adapt.
type Probe int

const (
	// ProbeCleanup matches Cleanup(ctx) error, Cleanup() error and Cleanup().
	ProbeCleanup Probe = iota
	// ProbeClose matches io.Closer, Close(ctx) error and Close().
	ProbeClose
	// ProbeShutdown matches Shutdown(ctx) error, the scoped asynchronous exit.
	ProbeShutdown
	// ProbeStop matches Stop() error and Stop(), the scoped synchronous exit.
	ProbeStop
)

func (p Probe) String() string {
	switch p {
	case ProbeCleanup:
		return "cleanup"
	case ProbeClose:
		return "close"
	case ProbeShutdown:
		return "shutdown"
	case ProbeStop:
		return "stop"
	default:
		return "unknown"
	}
}

var (
	// SchedulerProbeOrder is the probe order used for deferred cleanups.
	SchedulerProbeOrder = []Probe{ProbeCleanup, ProbeClose, ProbeShutdown, ProbeStop}

	// PoolProbeOrder is the probe order used when pools tear resources down.
	PoolProbeOrder = []Probe{ProbeClose, ProbeCleanup, ProbeShutdown, ProbeStop}
)

type (
	ctxCleaner   interface{ Cleanup(context.Context) error }
	errCleaner   interface{ Cleanup() error }
	plainCleaner interface{ Cleanup() }
	ctxCloser    interface{ Close(context.Context) error }
	plainCloser  interface{ Close() }
	shutdowner   interface{ Shutdown(context.Context) error }
	errStopper   interface{ Stop() error }
	plainStopper interface{ Stop() }
)

// Adapt reduces v to a Cleanable. A value that already implements Cleanable is
// returned as is; otherwise the probes are tried in order and the first match
// wins. The boolean is false when v exposes none of the probed shapes.
func Adapt(v any, order []Probe) (Cleanable, bool) {
	if v == nil {
		return nil, false
	}
	if c, ok := v.(Cleanable); ok {
		return c, true
	}
	for _, p := range order {
		if c := probe(v, p); c != nil {
			return c, true
		}
	}
	return nil, false
}

func probe(v any, p Probe) Cleanable {
	switch p {
	case ProbeCleanup:
		switch r := v.(type) {
		case ctxCleaner:
			return CleanableFunc(r.Cleanup)
		case errCleaner:
			return CleanableFunc(func(context.Context) error { return r.Cleanup() })
		case plainCleaner:
			return CleanableFunc(func(context.Context) error { r.Cleanup(); return nil })
		}
	case ProbeClose:
		switch r := v.(type) {
		case io.Closer:
			return CleanableFunc(func(context.Context) error { return r.Close() })
		case ctxCloser:
			return CleanableFunc(r.Close)
		case plainCloser:
			return CleanableFunc(func(context.Context) error { r.Close(); return nil })
		}
	case ProbeShutdown:
		if r, ok := v.(shutdowner); ok {
			return CleanableFunc(r.Shutdown)
		}
	case ProbeStop:
		switch r := v.(type) {
		case errStopper:
			return CleanableFunc(func(context.Context) error { return r.Stop() })
		case plainStopper:
			return CleanableFunc(func(context.Context) error { r.Stop(); return nil })
		}
	}
	return nil
}

// Dispose runs the custom function when given, otherwise the first matching
// probe of v. Panics are recovered. The boolean reports whether any disposal
// path was found.
func Dispose(ctx context.Context, v any, custom DisposeFunc, order []Probe) (bool, error) {
	if custom != nil {
		return true, Recover(func() error { return custom(ctx, v) })
	}
	c, ok := Adapt(v, order)
	if !ok {
		return false, nil
	}
	return true, Recover(func() error { return c.Dispose(ctx) })
}
