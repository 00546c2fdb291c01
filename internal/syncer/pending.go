package syncer

import (
	"time"

	"github.com/google/uuid"
)

// PendingChange marks a local change that has not reached the remote yet:
// a save that happened offline, a failed push, or a deferred sync.
type PendingChange struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// MarkPending appends a pending-change marker. The queue is bounded; once
// full, the oldest markers are evicted. A successful sync clears it.
func (c *Controller) MarkPending(label string) {
	limit := c.config.PendingLimit
	if limit <= 0 {
		limit = DefaultConfig().PendingLimit
	}

	c.mu.Lock()
	c.pending = append(c.pending, PendingChange{
		ID:    uuid.NewString(),
		Label: label,
		At:    time.Now(),
	})
	if len(c.pending) > limit {
		trimmed := make([]PendingChange, limit)
		copy(trimmed, c.pending[len(c.pending)-limit:])
		c.pending = trimmed
	}
	st := c.statusLocked()
	c.mu.Unlock()
	c.broadcast(st)
}

// Pending returns a copy of the pending-change queue, oldest first.
func (c *Controller) Pending() []PendingChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingChange, len(c.pending))
	copy(out, c.pending)
	return out
}

// PendingCount returns the number of queued pending changes.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
