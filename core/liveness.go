package core

import "sync/atomic"

// Liveness is an explicit "target still exists" flag. Owners call Kill when
// they dispose of a resource themselves; deferred cleanups observing a dead
// flag are dropped as if the target had been collected.
type Liveness struct {
	dead atomic.Bool
}

// NewLiveness returns a live flag.
func NewLiveness() *Liveness { return &Liveness{} }

// Kill marks the target gone. It is safe to call more than once.
func (l *Liveness) Kill() { l.dead.Store(true) }

// Alive reports whether Kill has not been called. A nil flag is always alive.
func (l *Liveness) Alive() bool {
	if l == nil {
		return true
	}
	return !l.dead.Load()
}
