// Package poller fetches new execution events for a trace on a fixed interval.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

const (
	DefaultInterval     = time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// Fetcher retrieves the page of events stored after afterSeq.
type Fetcher interface {
	FetchEvents(ctx context.Context, traceID string, afterSeq int64) (domain.PollResponse, error)
}

// Handler consumes fetched batches.
type Handler interface {
	// Merge is called with every non-empty batch and returns how many events were new.
	Merge(traceID string, events []domain.ExecutionEvent) int
	// Finalize is called once, with the first trace-terminal event seen,
	// unless the loop was stopped first.
	Finalize(ctx context.Context, traceID string, terminal domain.ExecutionEvent)
}

// Snapshot describes the state of the poll loop.
type Snapshot struct {
	TraceID           string     `json:"trace_id,omitempty"`
	Running           bool       `json:"running"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	LastTickAt        *time.Time `json:"last_tick_at,omitempty"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	TotalFetched      int64      `json:"total_fetched"`
	TotalAppended     int64      `json:"total_appended"`
	AfterSeq          int64      `json:"after_seq"`
	Terminated        bool       `json:"terminated"`
}

// Poller runs at most one poll loop at a time. Each loop performs one fetch
// per tick inline, so fetches of a trace never overlap.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	snapshot Snapshot
}

// New creates a poller. Non-positive durations fall back to defaults.
func New(fetcher Fetcher, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
	}
}

// Start stops any running loop and begins polling traceID.
func (p *Poller) Start(ctx context.Context, traceID string, h Handler) error {
	if traceID == "" {
		return domain.ErrEmptyTraceID
	}
	p.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	now := time.Now().UTC()

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.snapshot = Snapshot{
		TraceID:   traceID,
		Running:   true,
		StartedAt: &now,
	}
	p.mu.Unlock()

	go p.run(loopCtx, traceID, h, done)
	return nil
}

// Stop cancels the running loop and waits for it to exit. Results of a fetch
// still in flight are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Running
}

// Snapshot returns a copy of the loop state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Done returns a channel closed when the current loop exits, or nil when idle.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return nil
	}
	return p.done
}

func (p *Poller) run(ctx context.Context, traceID string, h Handler, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		if p.snapshot.TraceID == traceID {
			p.snapshot.Running = false
		}
		p.mu.Unlock()
	}()

	var afterSeq int64
	if p.tick(ctx, traceID, h, &afterSeq) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx, traceID, h, &afterSeq) {
				return
			}
		}
	}
}

// tick fetches once and reports whether the loop should stop. Cancellation is
// checked before every handler call so a stopped loop never delivers a batch
// or a result.
func (p *Poller) tick(ctx context.Context, traceID string, h Handler, afterSeq *int64) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: poll handler for trace %s panicked: %v", traceID, r)
			stop = false
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	page, err := p.fetcher.FetchEvents(fetchCtx, traceID, *afterSeq)
	cancel()

	if ctx.Err() != nil {
		return true
	}
	events := page.Events
	p.recordTick(err, len(events))
	if err != nil {
		log.Printf("WARN: poll trace %s failed: %v", traceID, err)
		return false
	}
	if page.NextSeq > *afterSeq {
		*afterSeq = page.NextSeq
		p.recordSeq(page.NextSeq)
	}
	if len(events) == 0 {
		return false
	}

	appended := h.Merge(traceID, events)
	p.recordAppended(appended)

	for _, ev := range events {
		if !ev.Type.IsTerminal() {
			continue
		}
		if ctx.Err() != nil {
			return true
		}
		p.mu.Lock()
		p.snapshot.Terminated = true
		p.mu.Unlock()
		h.Finalize(ctx, traceID, ev)
		return true
	}
	return false
}

func (p *Poller) recordTick(err error, fetched int) {
	now := time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot.LastTickAt = &now
	if err != nil {
		p.snapshot.LastErrorAt = &now
		p.snapshot.LastError = err.Error()
		p.snapshot.ConsecutiveErrors++
		return
	}
	p.snapshot.ConsecutiveErrors = 0
	p.snapshot.TotalFetched += int64(fetched)
}

func (p *Poller) recordSeq(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot.AfterSeq = seq
}

func (p *Poller) recordAppended(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot.TotalAppended += int64(n)
}
