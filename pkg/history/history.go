// Package history keeps the ordered feedback shown to the user.
package history

import (
	"sync"

	"github.com/valentinpelus/posturewatch/pkg/types"
)

// LiveCapacity is the number of entries retained while capturing live
const LiveCapacity = 10

// History is a bounded, insertion-ordered buffer of feedback entries.
// A capacity of zero means unbounded.
type History struct {
	capacity int
	entries  []types.FeedbackEntry
	mu       sync.RWMutex
}

// New creates an empty history
func New(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{capacity: capacity}
}

// Capacity returns the configured bound (0 = unbounded)
func (h *History) Capacity() int {
	return h.capacity
}

// Append adds an entry at the tail and evicts from the head until the
// history fits its capacity.
func (h *History) Append(entry types.FeedbackEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if h.capacity > 0 && len(h.entries) > h.capacity {
		drop := len(h.entries) - h.capacity
		kept := make([]types.FeedbackEntry, h.capacity)
		copy(kept, h.entries[drop:])
		h.entries = kept
	}
}

// ReplaceAll swaps the whole content in one step
func (h *History) ReplaceAll(entries []types.FeedbackEntry) {
	replaced := make([]types.FeedbackEntry, len(entries))
	copy(replaced, entries)

	h.mu.Lock()
	h.entries = replaced
	h.mu.Unlock()
}

// Snapshot returns a copy of the entries, oldest first
func (h *History) Snapshot() []types.FeedbackEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.FeedbackEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
