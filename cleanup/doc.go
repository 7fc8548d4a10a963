// Package cleanup implements a deferred, retrying cleanup scheduler.
//
// Callers hand a resource to Scheduler.Schedule together with a delay, a
// priority and an optional cleanup function. Entries live in a min-heap ordered
// by due time, with higher priority first among equal due times and schedule
// order after that. A dedicated goroutine wakes when something is enqueued or
// the next entry becomes due (at most every CheckInterval), pops every due
// entry and runs it on a bounded number of concurrent tasks.
//
// Each entry is keyed by a resource id. Scheduling an id that is already
// pending only moves its due time and priority; an id is never executed by two
// tasks at once. A failing cleanup is retried after RetryDelay until its retry
// budget is spent, so an always failing cleanup runs exactly MaxRetries+1 times.
//
// Targets can be held strongly, gated by a core.Liveness flag, or held through
// a weak pointer (ScheduleWeak). A target that is gone when the entry becomes
// due is dropped without running any cleanup; cancellation is treated the same
// way.
//
// DelayedContext and Using are the scoped helpers producers use to hand a
// resource to the scheduler on every exit path.
package cleanup
