package cleanup

import "sync/atomic"

// Stats is a snapshot of scheduler counters.
type Stats struct {
	// Scheduled counts accepted Schedule calls that created a new entry.
	Scheduled int64
	// Rescheduled counts Schedule calls that moved an already pending entry.
	Rescheduled int64
	// Executed counts cleanup attempts, including retries.
	Executed int64
	// Succeeded counts attempts that returned without error.
	Succeeded int64
	// Failed counts attempts that returned an error or panicked.
	Failed int64
	// Retried counts failed attempts that were queued again.
	Retried int64
	// Dropped counts entries that failed after their retry budget was spent.
	Dropped int64
	// Skipped counts entries whose target was gone at execution time.
	Skipped int64
	// Cancelled counts entries removed by Cancel, CancelAll or Shutdown.
	Cancelled int64
	// NoOp counts entries whose resource exposed no cleanup method.
	NoOp int64
	// Pending is the number of queued entries.
	Pending int
	// Active is the number of cleanups running right now.
	Active int
}

type counters struct {
	scheduled   atomic.Int64
	rescheduled atomic.Int64
	executed    atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	retried     atomic.Int64
	dropped     atomic.Int64
	skipped     atomic.Int64
	cancelled   atomic.Int64
	noop        atomic.Int64
}
