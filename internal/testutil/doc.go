// Package testutil contains fake resources, factories and counters used
// across tests to reduce boilerplate when exercising pools, the cleanup
// scheduler and the initializer. These helpers intentionally avoid adding
// third-party dependencies. They are not intended for production usage.
package testutil
