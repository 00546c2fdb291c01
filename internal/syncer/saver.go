package syncer

import (
	"context"
	"sync"
	"time"
)

// Saver is the debounced save pipeline. Every mutation calls Save with a
// short label describing the change; rapid calls within the debounce
// window coalesce into a single commit.
//
// A commit always writes the current snapshot locally. The remote push is
// best effort: signed out, offline, or a push failure record a pending
// marker instead of surfacing an error to the mutation path.
type Saver struct {
	controller *Controller

	mu     sync.Mutex
	timer  *time.Timer
	labels []string
}

// NewSaver creates a saver committing through the given controller's
// local and remote endpoints.
func NewSaver(c *Controller) *Saver {
	return &Saver{controller: c}
}

// Save schedules a debounced commit. Each call re-arms the timer, so a
// burst of edits commits once, after the burst settles.
func (s *Saver) Save(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.labels = append(s.labels, label)
	if s.timer != nil {
		s.timer.Stop()
	}
	interval := s.controller.config.DebounceInterval
	if interval <= 0 {
		interval = DefaultConfig().DebounceInterval
	}
	s.timer = time.AfterFunc(interval, s.flush)
}

// SaveNow commits immediately, folding in any debounced labels still
// waiting. Used before signout and shutdown.
func (s *Saver) SaveNow(label string) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	labels := append(s.labels, label)
	s.labels = nil
	s.mu.Unlock()

	s.commit(labels)
}

// Flush commits any pending debounced save right away. A no-op when
// nothing is queued.
func (s *Saver) Flush() {
	s.flush()
}

func (s *Saver) flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	labels := s.labels
	s.labels = nil
	s.mu.Unlock()

	if len(labels) == 0 {
		return
	}
	s.commit(labels)
}

func (s *Saver) commit(labels []string) {
	c := s.controller
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := c.store.Snapshot()
	if err := c.local.Save(ctx, snap); err != nil {
		// The in-memory store still holds the change; the next commit
		// retries the write.
		c.config.Logger.Printf("Warning: local save failed (%s): %v", labels[len(labels)-1], err)
	}

	if c.remote == nil || c.userID == "" {
		return
	}

	label := labels[len(labels)-1]
	if !c.probe(ctx) {
		c.setOffline("sync backend unreachable")
		c.MarkPending(label)
		return
	}
	if err := c.remote.Save(ctx, c.userID, snap); err != nil {
		c.config.Logger.Printf("Warning: push failed after %q: %v", label, err)
		c.MarkPending(label)
	}
}
