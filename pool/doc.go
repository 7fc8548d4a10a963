// Package pool implements bounded, auto-scaling pools of interchangeable
// resources handed out under mutual exclusion.
//
// A Pool owns a set of PooledResources created by a Factory. Acquire blocks
// (subject to a timeout) until an idle resource is available or a new one can
// be created below MaxSize; Release returns a resource after verifying that the
// caller owns it. After every acquire and release the pool re-evaluates its
// utilization: at or above ScaleUpThreshold one resource is added, at or below
// ScaleDownThreshold idle resources above MaxIdle are retired, never going below
// MinSize.
//
// Acquisition order is not FIFO: any idle resource may satisfy any waiter and a
// resource created by scale-up is eligible as soon as it is registered.
//
// Locking: pool membership, the idle set and size bookkeeping are guarded by a
// single pool mutex; each PooledResource guards its own state, owner and usage
// metrics. The pool lock may be held while taking a resource lock, never the
// other way round.
//
// Manager is a registry of pools keyed by id. It holds pool handles only and is
// used for lookup and process shutdown.
package pool
