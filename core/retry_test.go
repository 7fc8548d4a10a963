package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryBudget(t *testing.T) {
	rb := NewRetryBudget(2)
	assert.Equal(t, 2, rb.Remaining())
	assert.NoError(t, rb.Consume())
	assert.NoError(t, rb.Consume())
	assert.Error(t, rb.Consume())
	assert.Equal(t, 2, rb.Used())
	assert.Equal(t, 0, rb.Remaining())
	assert.Equal(t, 2, rb.Max())
}

func TestRetryBudget_NegativeIsZero(t *testing.T) {
	rb := NewRetryBudget(-3)
	assert.Equal(t, 0, rb.Max())
	assert.Error(t, rb.Consume())
}
