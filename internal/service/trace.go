package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// Kickoff registers a new trace for crewID and returns its id.
func (s *Service) Kickoff(ctx context.Context, crewID string, req domain.KickoffRequest) (*domain.KickoffResponse, error) {
	crewID = strings.TrimSpace(crewID)
	if crewID == "" {
		return nil, fmt.Errorf("crew_id is required")
	}

	trace := &domain.Trace{
		TraceID:   newTraceID(),
		CrewID:    crewID,
		Status:    domain.TraceStatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTrace(ctx, trace); err != nil {
		return nil, fmt.Errorf("failed to create trace: %w", err)
	}
	return &domain.KickoffResponse{TraceID: trace.TraceID}, nil
}

// GetTrace returns the stored trace record.
func (s *Service) GetTrace(ctx context.Context, traceID string) (*domain.Trace, error) {
	traceID = domain.NormalizeTraceID(traceID)
	if traceID == "" {
		return nil, domain.ErrEmptyTraceID
	}
	trace, err := s.store.GetTrace(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	if trace == nil {
		return nil, domain.ErrTraceNotFound
	}
	return trace, nil
}

// newTraceID returns 32 lowercase hex characters.
func newTraceID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
