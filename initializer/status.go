package initializer

import "time"

type state int

const (
	statePending state = iota
	stateInitializing
	stateInitialized
	stateRetrying
	stateFailed
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateInitializing:
		return "initializing"
	case stateInitialized:
		return "initialized"
	case stateRetrying:
		return "retrying"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// record is the bookkeeping for one registered name. Guarded by Initializer.mu.
type record struct {
	name     string
	fn       InitFunc
	priority int
	deps     []string
	seq      uint64

	state  state
	queued bool
	value  any
	err    error

	// done is closed when the current attempt completes.
	done       chan struct{}
	doneClosed bool

	registeredAt time.Time
	startedAt    time.Time
	completedAt  time.Time
	lastAccess   time.Time
	accessCount  int64
	attempts     int
	completion   uint64
}

// Status describes one registered name.
type Status struct {
	Name         string
	Priority     int
	Dependencies []string

	Initialized  bool
	Initializing bool
	// Failed is true once the name ran out of attempts.
	Failed bool
	// Retrying is true while a failed name waits for its next attempt.
	Retrying bool

	RegisteredAt time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	AccessCount  int64
	LastAccess   time.Time
	Attempts     int
	Err          error
}

func (r *record) status() Status {
	return Status{
		Name:         r.name,
		Priority:     r.priority,
		Dependencies: append([]string(nil), r.deps...),
		Initialized:  r.state == stateInitialized,
		Initializing: r.state == stateInitializing,
		Failed:       r.state == stateFailed,
		Retrying:     r.state == stateRetrying,
		RegisteredAt: r.registeredAt,
		StartedAt:    r.startedAt,
		CompletedAt:  r.completedAt,
		AccessCount:  r.accessCount,
		LastAccess:   r.lastAccess,
		Attempts:     r.attempts,
		Err:          r.err,
	}
}

// Stats aggregates the initializer state.
type Stats struct {
	Registered   int
	Pending      int
	Initializing int
	Initialized  int
	Retrying     int
	Failed       int

	// Attempts counts every InitFunc invocation.
	Attempts int64
	// Failures counts failed attempts, including retried ones.
	Failures int64
}
