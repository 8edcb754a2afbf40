// Package session binds one live trace to its event log, playback cursor,
// poller and finalizer, and derives frames for the diagram.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/eventlog"
	"github.com/xiaot623/gogo/crewtrace/internal/finalizer"
	"github.com/xiaot623/gogo/crewtrace/internal/playback"
	"github.com/xiaot623/gogo/crewtrace/internal/poller"
	"github.com/xiaot623/gogo/crewtrace/internal/projection"
)

const subscriberBuffer = 16

// Session is the visualization session for at most one trace at a time.
// Only the poller appends to the log; only cursor operations move the index.
type Session struct {
	poller    *poller.Poller
	finalizer *finalizer.Finalizer

	// ctrl serializes Start/Stop/Reset. The poll loop never takes it.
	ctrl sync.Mutex

	mu       sync.RWMutex
	traceID  string
	status   domain.TraceStatus
	running  bool
	events   *eventlog.Log
	cursor   *playback.Cursor
	topology domain.StaticTopology
	result   *domain.Result

	subMu   sync.Mutex
	subs    map[int]chan domain.Frame
	nextSub int
}

// New creates a session polling through p and finalizing through f.
func New(p *poller.Poller, f *finalizer.Finalizer) *Session {
	return &Session{
		poller:    p,
		finalizer: f,
		cursor:    playback.NewCursor(),
		subs:      make(map[int]chan domain.Frame),
	}
}

// Start discards the current trace, if any, and begins following traceID.
func (s *Session) Start(ctx context.Context, traceID string, topology domain.StaticTopology) error {
	traceID = domain.NormalizeTraceID(traceID)
	if traceID == "" {
		return domain.ErrEmptyTraceID
	}

	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.poller.Stop()

	s.mu.Lock()
	s.traceID = traceID
	s.status = domain.TraceStatusRunning
	s.running = true
	s.events = eventlog.New(traceID)
	s.cursor.Reset()
	s.topology = topology
	s.result = nil
	s.mu.Unlock()

	if err := s.poller.Start(ctx, traceID, s); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.publish()
	return nil
}

// Stop cancels polling and discards the trace, its log and cursor position.
func (s *Session) Stop() {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.poller.Stop()

	s.mu.Lock()
	s.discardLocked()
	s.mu.Unlock()
	s.publish()
}

// Reset is Stop plus forgetting the topology, used when the view is reset.
func (s *Session) Reset() {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.poller.Stop()

	s.mu.Lock()
	s.discardLocked()
	s.topology = domain.StaticTopology{}
	s.mu.Unlock()
	s.publish()
}

func (s *Session) discardLocked() {
	s.traceID = ""
	s.status = ""
	s.running = false
	s.events = nil
	s.result = nil
	s.cursor.Reset()
}

// Merge implements poller.Handler. Batches for a trace other than the
// current one, or arriving after the trace stopped, are discarded.
func (s *Session) Merge(traceID string, events []domain.ExecutionEvent) int {
	s.mu.Lock()
	if traceID != s.traceID || !s.running || s.events == nil {
		s.mu.Unlock()
		return 0
	}
	n := s.events.Merge(events)
	if n > 0 {
		s.cursor.AdvanceToLatestIfTracking(s.events.Len())
	}
	s.mu.Unlock()

	if n > 0 {
		s.publish()
	}
	return n
}

// Finalize implements poller.Handler.
func (s *Session) Finalize(ctx context.Context, traceID string, terminal domain.ExecutionEvent) {
	s.mu.Lock()
	if traceID != s.traceID || s.events == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	result, ok := s.finalizer.Finalize(ctx, traceID, terminal)
	if !ok && ctx.Err() != nil {
		return
	}
	if !ok {
		if prev, found := s.finalizer.Result(traceID); found {
			result = prev
		} else {
			result = finalizer.ResultFromEvent(traceID, terminal, time.Now())
		}
	}

	s.mu.Lock()
	if traceID == s.traceID {
		s.status = result.Status
		s.result = &result
		if s.events != nil {
			s.cursor.AdvanceToLatestIfTracking(s.events.Len())
		}
	}
	s.mu.Unlock()
	s.publish()
}

// Scrub moves the cursor to index and suspends auto-advance unless index is the last event.
func (s *Session) Scrub(index int) (domain.Frame, error) {
	s.mu.Lock()
	if s.events == nil {
		s.mu.Unlock()
		return domain.Frame{}, domain.ErrNoActiveTrace
	}
	s.cursor.SetManual(index, s.events.Len())
	s.mu.Unlock()

	s.publish()
	return s.Frame(), nil
}

// Follow releases a manual scrub and jumps to the newest event.
func (s *Session) Follow() (domain.Frame, error) {
	s.mu.Lock()
	if s.events == nil {
		s.mu.Unlock()
		return domain.Frame{}, domain.ErrNoActiveTrace
	}
	s.cursor.Follow(s.events.Len())
	s.mu.Unlock()

	s.publish()
	return s.Frame(), nil
}

// SetTopology replaces the static graph the projection is computed against.
func (s *Session) SetTopology(topology domain.StaticTopology) {
	s.mu.Lock()
	s.topology = topology
	s.mu.Unlock()
	s.publish()
}

// TraceID returns the current trace id, empty when idle.
func (s *Session) TraceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.traceID
}

// Running reports whether the session is still polling its trace.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Result returns the final result once the trace has terminated.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

// Events returns a copy of the merged events.
func (s *Session) Events() []domain.ExecutionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.events == nil {
		return []domain.ExecutionEvent{}
	}
	return s.events.All()
}

// PollerSnapshot exposes the poll loop state.
func (s *Session) PollerSnapshot() poller.Snapshot {
	return s.poller.Snapshot()
}

// Frame returns the visualization state at the cursor.
func (s *Session) Frame() domain.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameLocked(s.cursor.Index())
}

// FrameAt projects the prefix ending at index without moving the cursor.
func (s *Session) FrameAt(index int) (domain.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.events == nil {
		return domain.Frame{}, domain.ErrNoActiveTrace
	}
	if index < 0 {
		index = 0
	}
	if last := s.events.Len() - 1; index > last && last >= 0 {
		index = last
	}
	return s.frameLocked(index), nil
}

func (s *Session) frameLocked(index int) domain.Frame {
	frame := domain.Frame{
		TraceID:  s.traceID,
		Status:   s.status,
		Index:    index,
		Tracking: s.cursor.Tracking(),
		Slider:   playback.Slider(0),
		Nodes:    []domain.ActiveNodeState{},
	}
	if s.events == nil {
		return frame
	}
	frame.Count = s.events.Len()
	frame.Slider = playback.Slider(frame.Count)
	if ev, ok := s.events.At(index); ok {
		frame.Event = &ev
	}
	frame.Nodes = projection.Project(s.events.Prefix(index), s.topology)
	if s.result != nil {
		r := *s.result
		frame.Result = &r
	}
	return frame
}

// Subscribe returns a channel receiving a frame after every change. Slow
// subscribers miss frames rather than block the session.
func (s *Session) Subscribe() (<-chan domain.Frame, func()) {
	ch := make(chan domain.Frame, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) publish() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	frame := s.Frame()
	for _, ch := range s.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}
