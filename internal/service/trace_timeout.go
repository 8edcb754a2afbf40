package service

import (
	"context"
	"log"
	"time"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// RunTraceTimeoutMonitor fails traces that never reported a terminal event.
func (s *Service) RunTraceTimeoutMonitor(ctx context.Context) {
	if s.config == nil || s.config.TraceTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepTraceTimeouts(ctx)
		}
	}
}

func (s *Service) sweepTraceTimeouts(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stale, err := s.store.ListStaleTraces(sweepCtx, time.Now().Add(-s.config.TraceTimeout), 100)
	if err != nil {
		log.Printf("WARN: trace timeout sweep failed: %v", err)
		return
	}

	for _, tr := range stale {
		ev := domain.ExecutionEvent{
			Type:  domain.EventTypeCrewKickoffFailed,
			Error: "trace timed out",
		}
		updated, err := s.store.CompleteTrace(sweepCtx, tr.TraceID, domain.TraceStatusFailed, "", ev.Error)
		if err != nil {
			log.Printf("WARN: failed to mark trace timeout %s: %v", tr.TraceID, err)
			continue
		}
		if !updated {
			continue
		}
		// Pollers stop on the terminal event, so one must be in the log.
		if err := s.recordEvent(sweepCtx, tr.TraceID, ev); err != nil {
			log.Printf("WARN: failed to record trace timeout event %s: %v", tr.TraceID, err)
		}
	}
}
