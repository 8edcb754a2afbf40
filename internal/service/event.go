package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/policy"
)

const maxPageSize = 1000

// AppendEvents records events emitted by the crew runtime. Each event passes
// the ingest policy; a terminal event completes the trace and blocks the rest.
func (s *Service) AppendEvents(ctx context.Context, traceID string, events []domain.ExecutionEvent) (*domain.AppendEventsResponse, error) {
	trace, err := s.GetTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}

	resp := &domain.AppendEventsResponse{Rejected: []domain.RejectedItem{}}
	status := trace.Status
	for _, ev := range events {
		ev.TraceID = trace.TraceID
		if ev.Timestamp <= 0 {
			ev.Timestamp = time.Now().UnixMilli()
		}

		decision, reason, err := s.policyEngine.Evaluate(ctx, policy.Input{
			TraceID:     trace.TraceID,
			TraceStatus: string(status),
			EventID:     ev.ID,
			EventType:   string(ev.Type),
			KnownType:   ev.Type.IsKnown(),
			AgentID:     ev.AgentID,
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		if decision == policy.DecisionBlock {
			resp.Rejected = append(resp.Rejected, domain.RejectedItem{EventID: ev.ID, Reason: reason})
			continue
		}

		inserted, err := s.store.AppendEvent(ctx, &ev)
		if err != nil {
			return nil, fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
		if !inserted {
			continue
		}
		resp.Appended++

		if ev.Type.IsTerminal() {
			status = s.completeTrace(ctx, trace.TraceID, ev)
		}
	}
	return resp, nil
}

// GetEvents returns events stored after afterSeq, in arrival order.
func (s *Service) GetEvents(ctx context.Context, traceID string, afterSeq int64, limit int) (*domain.PollResponse, error) {
	trace, err := s.GetTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	events, nextSeq, err := s.store.GetEvents(ctx, trace.TraceID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return &domain.PollResponse{Events: events, NextSeq: nextSeq}, nil
}

func (s *Service) completeTrace(ctx context.Context, traceID string, ev domain.ExecutionEvent) domain.TraceStatus {
	status := domain.TraceStatusCompleted
	errMsg := ""
	if ev.Type == domain.EventTypeCrewKickoffFailed {
		status = domain.TraceStatusFailed
		errMsg = ev.Error
		if errMsg == "" {
			errMsg = ev.Message
		}
	}
	if _, err := s.store.CompleteTrace(ctx, traceID, status, ev.Output, errMsg); err != nil {
		log.Printf("ERROR: failed to complete trace %s: %v", traceID, err)
	}
	return status
}

// recordEvent appends a server-generated event, bypassing the ingest policy.
func (s *Service) recordEvent(ctx context.Context, traceID string, ev domain.ExecutionEvent) error {
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.New().String()[:8]
	}
	ev.TraceID = traceID
	if ev.Timestamp <= 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	_, err := s.store.AppendEvent(ctx, &ev)
	return err
}
