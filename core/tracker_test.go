package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type failingCloser struct {
	name string
	log  *[]string
	err  error
}

func (f *failingCloser) Close() error {
	*f.log = append(*f.log, f.name)
	return f.err
}

func TestTracker_CleanupAllAggregates(t *testing.T) {
	var log []string
	tr := NewTracker()
	tr.Track("a", &failingCloser{name: "a", log: &log}, nil)
	tr.Track("b", &failingCloser{name: "b", log: &log, err: errors.New("b failed")}, nil)
	tr.Track("c", &failingCloser{name: "c", log: &log, err: errors.New("c failed")}, nil)
	require.Equal(t, 3, tr.Len())

	err := tr.CleanupAll(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, ErrCleanup)
	assert.Equal(t, []string{"c", "b", "a"}, log, "every item attempted in reverse order")
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_UntrackAndCustomDispose(t *testing.T) {
	tr := NewTracker()
	var disposed []any
	tr.Track("x", "value", func(_ context.Context, v any) error {
		disposed = append(disposed, v)
		return nil
	})
	tr.Track("y", "other", nil)
	assert.True(t, tr.Untrack("y"))
	assert.False(t, tr.Untrack("y"))

	require.NoError(t, tr.CleanupAll(context.Background()))
	assert.Equal(t, []any{"value"}, disposed)
}
