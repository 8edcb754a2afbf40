package finalizer

import (
	"context"
	"sync"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// MemoryHistory keeps results in process memory.
type MemoryHistory struct {
	mu      sync.RWMutex
	results []domain.Result
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) AppendResult(_ context.Context, result domain.Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
	return nil
}

// ListResults returns the newest results first, at most limit when limit > 0.
func (h *MemoryHistory) ListResults(_ context.Context, limit int) ([]domain.Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Result, 0, len(h.results))
	for i := len(h.results) - 1; i >= 0; i-- {
		out = append(out, h.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
