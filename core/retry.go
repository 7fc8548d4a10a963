package core

import (
	"fmt"
	"sync"
)

// RetryBudget counts failed attempts against a maximum number of retries.
// The first attempt is free; Consume is called after every failure.
type RetryBudget struct {
	max  int
	used int
	mu   sync.Mutex
}

// NewRetryBudget creates a budget that allows max retries. Negative values are treated as zero.
func NewRetryBudget(max int) *RetryBudget {
	if max < 0 {
		max = 0
	}
	return &RetryBudget{max: max}
}

// Consume records one retry and returns an error if the budget is exhausted.
func (rb *RetryBudget) Consume() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.used >= rb.max {
		return fmt.Errorf("exceeded max retries: %d", rb.max)
	}
	rb.used++

	return nil
}

// Used returns the number of retries consumed so far.
func (rb *RetryBudget) Used() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.used
}

// Max returns the configured number of retries.
func (rb *RetryBudget) Max() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.max
}

// Remaining returns how many retries are left.
func (rb *RetryBudget) Remaining() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.max - rb.used
}
