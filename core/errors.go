package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when no resource became available within the acquire timeout.
	ErrUnavailable = errors.New("resource unavailable")

	// ErrNotFound is returned for an unknown pool, resource or registration name.
	ErrNotFound = errors.New("resource not found")

	// ErrOwnership is returned when a release is attempted by the wrong owner or
	// for a resource that is not checked out.
	ErrOwnership = errors.New("resource ownership violation")

	// ErrCreation marks failures raised by a factory or initializer function.
	ErrCreation = errors.New("resource creation failed")

	// ErrCleanup marks failures raised while disposing of a resource.
	ErrCleanup = errors.New("resource cleanup failed")

	// ErrCircularDependency is returned when a registration would close a dependency cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrAlreadyRegistered is returned when a name is registered twice.
	ErrAlreadyRegistered = errors.New("resource already registered")

	// ErrStillInitializing is returned by non-blocking lookups of an in-flight initialization.
	ErrStillInitializing = errors.New("resource still initializing")

	// ErrNotInitialized is returned by non-blocking lookups of a resource that has not started.
	ErrNotInitialized = errors.New("resource not initialized")

	// ErrClosed is returned when a component is used after Close/Shutdown.
	ErrClosed = errors.New("closed")

	// ErrInvalidConfig is returned by Config.Validate implementations.
	ErrInvalidConfig = errors.New("invalid config")
)

// CreationError reports a failed factory or initializer call.
type CreationError struct {
	Resource string
	Err      error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Resource, e.Err)
}

// Unwrap exposes both ErrCreation and the underlying cause to errors.Is / errors.As.
func (e *CreationError) Unwrap() []error { return []error{ErrCreation, e.Err} }

// CleanupError reports a failed disposal of a single resource.
type CleanupError struct {
	ResourceID string
	Err        error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.ResourceID, e.Err)
}

// Unwrap exposes both ErrCleanup and the underlying cause to errors.Is / errors.As.
func (e *CleanupError) Unwrap() []error { return []error{ErrCleanup, e.Err} }

// PanicError wraps a value recovered from a panicking user callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
