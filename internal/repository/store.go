// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Trace operations
	CreateTrace(ctx context.Context, trace *domain.Trace) error
	GetTrace(ctx context.Context, traceID string) (*domain.Trace, error)
	CompleteTrace(ctx context.Context, traceID string, status domain.TraceStatus, output, errMsg string) (bool, error)
	ListStaleTraces(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Trace, error)

	// Event operations
	AppendEvent(ctx context.Context, event *domain.ExecutionEvent) (bool, error)
	GetEvents(ctx context.Context, traceID string, afterSeq int64, limit int) ([]domain.ExecutionEvent, int64, error)

	// Result history
	AppendResult(ctx context.Context, result domain.Result) error
	ListResults(ctx context.Context, limit int) ([]domain.Result, error)

	// Lifecycle
	Close() error
}
