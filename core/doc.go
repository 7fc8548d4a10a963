// Package core provides the foundational contracts shared by the resource
// lifecycle components. It defines:
//
//   - The error taxonomy (unavailable, not-found, ownership, creation, cleanup,
//     circular dependency, still-initializing, closed)
//   - Cleanable, the single capability every disposable resource is reduced to,
//     plus Adapt which wraps legacy Close/Cleanup/Shutdown/Stop shapes once
//   - Liveness, an explicit "target is gone" flag for deferred cleanups
//   - RetryBudget, the bounded attempt counter used by retrying loops
//   - Tracker, a keyed registry of resources disposed together
//
// Pools, the cleanup scheduler and the initializer depend on this package but
// never on each other's locks or internals.
package core
