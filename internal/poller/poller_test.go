package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

type step struct {
	events []domain.ExecutionEvent
	next   int64
	err    error
}

type scriptedFetcher struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	afterSeq []int64
}

func (f *scriptedFetcher) FetchEvents(_ context.Context, _ string, afterSeq int64) (domain.PollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSeq = append(f.afterSeq, afterSeq)
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		return domain.PollResponse{NextSeq: afterSeq}, nil
	}
	s := f.steps[i]
	return domain.PollResponse{Events: s.events, NextSeq: s.next}, s.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingHandler struct {
	mu        sync.Mutex
	batches   [][]domain.ExecutionEvent
	finalized []domain.ExecutionEvent
	panicOn   int
}

func (h *recordingHandler) Merge(_ string, events []domain.ExecutionEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, events)
	if h.panicOn > 0 && len(h.batches) == h.panicOn {
		panic("boom")
	}
	return len(events)
}

func (h *recordingHandler) Finalize(_ context.Context, _ string, terminal domain.ExecutionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalized = append(h.finalized, terminal)
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	done := p.Done()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerStopsOnTerminalEvent(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{events: []domain.ExecutionEvent{{ID: "1", Type: domain.EventTypeTaskStart, Timestamp: 10}}},
		{events: []domain.ExecutionEvent{
			{ID: "2", Type: domain.EventTypeLLMCall, Timestamp: 20},
			{ID: "3", Type: domain.EventTypeCrewKickoffCompleted, Timestamp: 30, Output: "done"},
		}},
		{events: []domain.ExecutionEvent{{ID: "4", Type: domain.EventTypeCrewKickoffFailed, Timestamp: 40}}},
	}}
	h := &recordingHandler{}
	p := New(fetcher, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	waitDone(t, p)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, fetcher.Calls())
	require.Len(t, h.finalized, 1)
	assert.Equal(t, "3", h.finalized[0].ID)
	assert.False(t, p.Running())

	snap := p.Snapshot()
	assert.True(t, snap.Terminated)
	assert.Equal(t, int64(3), snap.TotalFetched)
	assert.Equal(t, int64(3), snap.TotalAppended)
}

func TestPollerAdvancesBySeq(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{events: []domain.ExecutionEvent{{ID: "1", Timestamp: 10}, {ID: "2", Timestamp: 15}}, next: 2},
		{},
		// Out-of-order timestamps do not affect the position.
		{events: []domain.ExecutionEvent{{ID: "3", Timestamp: 5}}, next: 3},
		{events: []domain.ExecutionEvent{{ID: "4", Type: domain.EventTypeCrewKickoffCompleted, Timestamp: 15}}, next: 4},
	}}
	h := &recordingHandler{}
	p := New(fetcher, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	waitDone(t, p)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Equal(t, []int64{0, 2, 2, 3}, fetcher.afterSeq)
	assert.Len(t, h.batches, 3)
	assert.Equal(t, int64(4), p.Snapshot().AfterSeq)
}

func TestPollerRetriesAfterFetchError(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{events: []domain.ExecutionEvent{{ID: "1", Type: domain.EventTypeCrewKickoffFailed, Error: "bad"}}, next: 1},
	}}
	h := &recordingHandler{}
	p := New(fetcher, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	waitDone(t, p)

	assert.Equal(t, 3, fetcher.Calls())
	require.Len(t, h.finalized, 1)
	snap := p.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveErrors)
	assert.Equal(t, "connection refused", snap.LastError)
}

func TestPollerSurvivesHandlerPanic(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{events: []domain.ExecutionEvent{{ID: "1"}}},
		{events: []domain.ExecutionEvent{{ID: "2", Type: domain.EventTypeCrewKickoffCompleted}}},
	}}
	h := &recordingHandler{panicOn: 1}
	p := New(fetcher, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	waitDone(t, p)

	assert.Len(t, h.batches, 2)
	assert.Len(t, h.finalized, 1)
}

type blockingFetcher struct {
	entered chan struct{}
}

func (f *blockingFetcher) FetchEvents(ctx context.Context, _ string, _ int64) (domain.PollResponse, error) {
	close(f.entered)
	<-ctx.Done()
	// The response "arrives" after cancellation.
	return domain.PollResponse{Events: []domain.ExecutionEvent{{ID: "stale"}}, NextSeq: 1}, nil
}

func TestPollerStopDiscardsInFlightFetch(t *testing.T) {
	fetcher := &blockingFetcher{entered: make(chan struct{})}
	h := &recordingHandler{}
	p := New(fetcher, time.Hour, time.Hour)

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	<-fetcher.entered
	p.Stop()

	assert.Empty(t, h.batches)
	assert.False(t, p.Running())
	assert.Nil(t, p.Done())
}

// stoppingHandler stops the poller while a batch is being merged.
type stoppingHandler struct {
	recordingHandler
	p *Poller
}

func (h *stoppingHandler) Merge(traceID string, events []domain.ExecutionEvent) int {
	go h.p.Stop()
	for h.p.Done() != nil {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	return h.recordingHandler.Merge(traceID, events)
}

func TestPollerStopDuringMergeSkipsFinalize(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{events: []domain.ExecutionEvent{
			{ID: "1", Type: domain.EventTypeLLMCall},
			{ID: "2", Type: domain.EventTypeCrewKickoffCompleted, Output: "done"},
		}, next: 2},
	}}
	p := New(fetcher, time.Hour, time.Second)
	h := &stoppingHandler{p: p}

	require.NoError(t, p.Start(context.Background(), "trace-1", h))
	require.Eventually(t, func() bool { return !p.Running() }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.batches, 1)
	assert.Empty(t, h.finalized)
	assert.False(t, p.Snapshot().Terminated)
}

func TestPollerRejectsEmptyTraceID(t *testing.T) {
	p := New(&scriptedFetcher{}, 0, 0)
	err := p.Start(context.Background(), "", &recordingHandler{})
	assert.ErrorIs(t, err, domain.ErrEmptyTraceID)
	p.Stop()
}
