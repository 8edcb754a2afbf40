// Package eventlog holds the append-only, deduplicated event buffer of one trace.
package eventlog

import (
	"sync"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// Log is an append-only list of execution events keyed by event id.
type Log struct {
	mu      sync.RWMutex
	traceID string
	events  []domain.ExecutionEvent
	seen    map[string]struct{}
	lastTs  int64
}

// New creates an empty log for a trace.
func New(traceID string) *Log {
	return &Log{
		traceID: traceID,
		seen:    make(map[string]struct{}),
	}
}

// TraceID returns the trace the log belongs to.
func (l *Log) TraceID() string {
	return l.traceID
}

// Merge appends events not seen before, in arrival order, and returns how
// many were appended. Events without an id cannot be deduplicated and are dropped.
func (l *Log) Merge(events []domain.ExecutionEvent) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	appended := 0
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if _, dup := l.seen[ev.ID]; dup {
			continue
		}
		l.seen[ev.ID] = struct{}{}
		l.events = append(l.events, ev)
		if ev.Timestamp > l.lastTs {
			l.lastTs = ev.Timestamp
		}
		appended++
	}
	return appended
}

// Len returns the number of merged events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Prefix returns a copy of events[0..index], inclusive. The index is clamped
// to the log bounds; an empty log yields an empty prefix.
func (l *Log) Prefix(index int) []domain.ExecutionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 || index < 0 {
		return []domain.ExecutionEvent{}
	}
	if index >= len(l.events) {
		index = len(l.events) - 1
	}
	out := make([]domain.ExecutionEvent, index+1)
	copy(out, l.events[:index+1])
	return out
}

// All returns a copy of every merged event.
func (l *Log) All() []domain.ExecutionEvent {
	return l.Prefix(l.Len() - 1)
}

// At returns the event at index.
func (l *Log) At(index int) (domain.ExecutionEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.events) {
		return domain.ExecutionEvent{}, false
	}
	return l.events[index], true
}

// LastTimestamp returns the largest timestamp merged so far.
func (l *Log) LastTimestamp() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastTs
}

// Terminal returns the first trace-terminal event in the log.
func (l *Log) Terminal() (domain.ExecutionEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ev := range l.events {
		if ev.Type.IsTerminal() {
			return ev, true
		}
	}
	return domain.ExecutionEvent{}, false
}
