package finalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

type failingHistory struct{ calls int }

func (h *failingHistory) AppendResult(context.Context, domain.Result) error {
	h.calls++
	return errors.New("disk full")
}

func TestFinalizeCompletedOnce(t *testing.T) {
	ctx := context.Background()
	history := NewMemoryHistory()
	f := New(history)

	res, ok := f.Finalize(ctx, "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffCompleted, Output: "done"})
	require.True(t, ok)
	assert.Equal(t, domain.TraceStatusCompleted, res.Status)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, "done", res.Text())

	_, ok = f.Finalize(ctx, "t1", domain.ExecutionEvent{ID: "e2", Type: domain.EventTypeCrewKickoffFailed, Error: "late"})
	assert.False(t, ok)

	results, err := history.ListResults(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].EventID)

	stored, ok := f.Result("t1")
	require.True(t, ok)
	assert.Equal(t, domain.TraceStatusCompleted, stored.Status)
}

func TestFinalizeFailed(t *testing.T) {
	f := New(nil)

	res, ok := f.Finalize(context.Background(), "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffFailed, Error: "tool crashed"})
	require.True(t, ok)
	assert.Equal(t, domain.TraceStatusFailed, res.Status)
	assert.Equal(t, "tool crashed", res.Text())
	assert.Empty(t, res.Output)
}

func TestFinalizeIgnoresNonTerminal(t *testing.T) {
	f := New(nil)
	_, ok := f.Finalize(context.Background(), "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeLLMCall})
	assert.False(t, ok)
	_, ok = f.Result("t1")
	assert.False(t, ok)
}

func TestFinalizeSurvivesHistoryFailure(t *testing.T) {
	h := &failingHistory{}
	f := New(h)

	_, ok := f.Finalize(context.Background(), "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffCompleted})
	assert.True(t, ok)
	assert.Equal(t, 1, h.calls)
}

func TestFinalizeDiscardsCancelledTrace(t *testing.T) {
	history := NewMemoryHistory()
	f := New(history)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := f.Finalize(ctx, "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffCompleted})
	assert.False(t, ok)
	_, ok = f.Result("t1")
	assert.False(t, ok)

	results, err := history.ListResults(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// cancellingHistory cancels the caller's context before writing.
type cancellingHistory struct {
	cancel   context.CancelFunc
	writeErr error
}

func (h *cancellingHistory) AppendResult(ctx context.Context, _ domain.Result) error {
	h.cancel()
	h.writeErr = ctx.Err()
	return nil
}

func TestFinalizeHistoryWriteOutlivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &cancellingHistory{cancel: cancel}
	f := New(h)

	_, ok := f.Finalize(ctx, "t1", domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffCompleted})
	require.True(t, ok)
	assert.NoError(t, h.writeErr)
}

func TestForgetAllowsRestart(t *testing.T) {
	f := New(nil)
	ctx := context.Background()
	term := domain.ExecutionEvent{ID: "e1", Type: domain.EventTypeCrewKickoffCompleted}

	_, ok := f.Finalize(ctx, "t1", term)
	require.True(t, ok)
	f.Forget("t1")
	_, ok = f.Finalize(ctx, "t1", term)
	assert.True(t, ok)
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.AppendResult(ctx, domain.Result{TraceID: id}))
	}

	results, err := h.ListResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].TraceID)
	assert.Equal(t, "b", results[1].TraceID)
}
