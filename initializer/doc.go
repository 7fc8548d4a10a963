// Package initializer runs named initialization functions in the background,
// in priority order and after their dependencies.
//
// Register records a name, an InitFunc, a priority and the names it depends
// on. Registrations that would close a dependency cycle are rejected. A
// background loop repeatedly picks the highest priority registration whose
// dependencies are settled and initializes it on a bounded number of slots.
//
// Get blocks until a name is initialized, starting an attempt itself when
// none is running, also for a name still waiting for its retry. Concurrent
// callers share a single attempt. TryGet never blocks. Failed attempts are
// queued again after RetryDelay; an optional MaxAttempts makes a name fail
// permanently once reached.
//
// Close stops the loop, waits for running attempts and disposes of
// initialized values in reverse completion order. A value that an attempt
// produces after Close is disposed of as soon as it arrives.
package initializer
