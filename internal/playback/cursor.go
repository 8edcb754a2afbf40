// Package playback implements the cursor that selects the visible prefix of a trace.
package playback

import (
	"sync"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

const (
	StartLabel = "Start"
	EndLabel   = "End"
)

// Cursor is a position into an event log. While tracking, it follows the
// newest event; a manual scrub suspends tracking until Follow or Reset.
type Cursor struct {
	mu       sync.Mutex
	index    int
	tracking bool
}

// NewCursor returns a cursor at 0 that tracks the log.
func NewCursor() *Cursor {
	return &Cursor{tracking: true}
}

// Index returns the current position.
func (c *Cursor) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Tracking reports whether the cursor auto-advances.
func (c *Cursor) Tracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

// AdvanceToLatestIfTracking moves to the last index of a log of the given
// length unless the consumer has scrubbed away from it. It reports whether
// the index moved.
func (c *Cursor) AdvanceToLatestIfTracking(length int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tracking {
		return false
	}
	last := lastIndex(length)
	if c.index == last {
		return false
	}
	c.index = last
	return true
}

// SetManual moves the cursor to index, clamped to the log. Landing on the
// last index keeps the cursor tracking; anywhere else suspends auto-advance.
func (c *Cursor) SetManual(index, length int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := lastIndex(length)
	if index < 0 {
		index = 0
	}
	if index > last {
		index = last
	}
	c.index = index
	c.tracking = index == last
	return index
}

// Follow releases a manual scrub and jumps to the newest event.
func (c *Cursor) Follow(length int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracking = true
	c.index = lastIndex(length)
	return c.index
}

// Reset returns to 0 and re-enables tracking.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
	c.tracking = true
}

// Slider describes the position selector for a log of the given length.
func Slider(length int) domain.Slider {
	return domain.Slider{
		Min:        0,
		Max:        lastIndex(length),
		StartLabel: StartLabel,
		EndLabel:   EndLabel,
	}
}

func lastIndex(length int) int {
	if length <= 0 {
		return 0
	}
	return length - 1
}
