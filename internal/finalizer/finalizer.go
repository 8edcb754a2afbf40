// Package finalizer turns a trace-terminal event into the run's single result.
package finalizer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// History receives the final artifact of each trace.
type History interface {
	AppendResult(ctx context.Context, result domain.Result) error
}

// historyTimeout bounds the result write once a trace has been finalized.
const historyTimeout = 5 * time.Second

// Finalizer freezes traces exactly once.
type Finalizer struct {
	history History
	now     func() time.Time

	mu   sync.Mutex
	done map[string]domain.Result
}

// New creates a finalizer. A nil history is allowed.
func New(history History) *Finalizer {
	return &Finalizer{
		history: history,
		now:     time.Now,
		done:    make(map[string]domain.Result),
	}
}

// Finalize records the result of traceID from its terminal event. It returns
// false when the trace was already finalized, the event is not terminal, or
// ctx is already cancelled. Once accepted, the history write is not aborted
// by a later cancellation of ctx.
func (f *Finalizer) Finalize(ctx context.Context, traceID string, ev domain.ExecutionEvent) (domain.Result, bool) {
	if !ev.Type.IsTerminal() {
		return domain.Result{}, false
	}

	f.mu.Lock()
	if ctx.Err() != nil {
		f.mu.Unlock()
		log.Printf("WARN: discarding terminal event %s for stopped trace %s", ev.ID, traceID)
		return domain.Result{}, false
	}
	if prev, ok := f.done[traceID]; ok {
		f.mu.Unlock()
		log.Printf("WARN: ignoring terminal event %s for already finalized trace %s", ev.ID, traceID)
		return prev, false
	}
	result := ResultFromEvent(traceID, ev, f.now())
	f.done[traceID] = result
	f.mu.Unlock()

	if f.history != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		defer cancel()
		if err := f.history.AppendResult(writeCtx, result); err != nil {
			log.Printf("ERROR: failed to append result for trace %s: %v", traceID, err)
		}
	}
	return result, true
}

// Result returns the finalized result of a trace.
func (f *Finalizer) Result(traceID string) (domain.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.done[traceID]
	return r, ok
}

// Forget drops the bookkeeping for a discarded trace.
func (f *Finalizer) Forget(traceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.done, traceID)
}

// ResultFromEvent extracts the output or error carried by a terminal event.
func ResultFromEvent(traceID string, ev domain.ExecutionEvent, at time.Time) domain.Result {
	result := domain.Result{
		TraceID:    traceID,
		EventID:    ev.ID,
		FinishedAt: at,
	}
	if ev.Type == domain.EventTypeCrewKickoffFailed {
		result.Status = domain.TraceStatusFailed
		result.Error = ev.Error
		if result.Error == "" {
			result.Error = ev.Message
		}
		return result
	}
	result.Status = domain.TraceStatusCompleted
	result.Output = ev.Output
	return result
}
