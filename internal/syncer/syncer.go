package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/markbook-app/markbook/internal/merge"
	"github.com/markbook-app/markbook/internal/remote"
	"github.com/markbook-app/markbook/internal/store"
)

// State is the controller's externally visible phase.
type State string

const (
	// StateIdle means no sync is running and the last one succeeded.
	StateIdle State = "idle"
	// StateSyncing means a sync is currently in flight.
	StateSyncing State = "syncing"
	// StateError means the last sync failed.
	StateError State = "error"
	// StateOffline means the remote backend is unreachable.
	StateOffline State = "offline"
)

// Status is a point-in-time view of the controller, suitable for JSON
// encoding onto a status endpoint.
type Status struct {
	State    State     `json:"state"`
	LastSync time.Time `json:"last_sync,omitzero"`
	Pending  int       `json:"pending"`
	Message  string    `json:"message,omitempty"`
}

var (
	// ErrSyncInFlight is returned when a sync is already running.
	ErrSyncInFlight = errors.New("sync already in progress")
	// ErrOffline is returned when the remote backend is unreachable.
	ErrOffline = errors.New("sync backend unreachable")
	// ErrNoRemote is returned when no remote is configured (local-only
	// mode or signed out).
	ErrNoRemote = errors.New("no remote configured")
)

// Remote is the cloud side of the pipeline.
type Remote interface {
	Load(ctx context.Context, userID string) (*store.Snapshot, error)
	Save(ctx context.Context, userID string, snap *store.Snapshot) error
}

// Local persists snapshots on this device.
type Local interface {
	Save(ctx context.Context, snap *store.Snapshot) error
}

// Config holds configuration for the sync controller.
type Config struct {
	// SyncInterval is how often the background loop attempts a sync.
	SyncInterval time.Duration

	// ProbeInterval is how often the background loop re-checks
	// connectivity while offline, so a regained connection syncs
	// without waiting out the full sync interval.
	ProbeInterval time.Duration

	// DebounceInterval is how long the Saver waits after the last Save
	// call before committing.
	DebounceInterval time.Duration

	// PendingLimit bounds the pending-change queue; the oldest entries
	// are evicted past it.
	PendingLimit int

	// Probe checks remote reachability. Nil assumes always online.
	Probe Probe

	// Resolver, when set, is consulted for classrooms modified on both
	// sides before the merged snapshot is pushed.
	Resolver merge.Resolver

	// Logger for sync activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Second,
		ProbeInterval:    5 * time.Second,
		DebounceInterval: 150 * time.Millisecond,
		PendingLimit:     50,
		Logger:           log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Controller orchestrates pull, merge, push and local persistence.
type Controller struct {
	store  *store.Store
	local  Local
	remote Remote
	userID string
	config *Config

	mu       sync.Mutex
	state    State
	lastSync time.Time
	message  string
	pending  []PendingChange

	subMu   sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// New creates a sync controller. remote may be nil for local-only mode;
// SyncWithCloud then returns ErrNoRemote. If config is nil, DefaultConfig
// is used.
func New(st *store.Store, local Local, rm Remote, userID string, config *Config) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Controller{
		store:  st,
		local:  local,
		remote: rm,
		userID: userID,
		config: config,
		state:  StateIdle,
		subs:   make(map[int]chan Status),
	}
}

// SyncWithCloud runs one full sync cycle: pull, merge, resolve conflicts,
// replace the store, push, persist locally, clear the pending queue.
//
// Concurrent invocations are dropped with ErrSyncInFlight. An unreachable
// backend flips the controller to offline and records a pending marker
// instead of running the cycle.
func (c *Controller) SyncWithCloud(ctx context.Context) error {
	if c.remote == nil || c.userID == "" {
		return ErrNoRemote
	}
	if !c.probe(ctx) {
		c.setOffline("sync backend unreachable")
		c.MarkPending("sync deferred while offline")
		return ErrOffline
	}
	if !c.begin() {
		return ErrSyncInFlight
	}

	notice, err := c.syncOnce(ctx)
	if err != nil {
		c.config.Logger.Printf("Sync failed: %v", err)
		c.fail(err)
		c.MarkPending("sync failed")
		return err
	}
	c.finish(notice)
	return nil
}

// syncOnce is the pipeline body. It runs with the controller in
// StateSyncing and returns a non-fatal user notice, if any.
func (c *Controller) syncOnce(ctx context.Context) (string, error) {
	remoteSnap, err := c.remote.Load(ctx, c.userID)
	if err != nil {
		return "", fmt.Errorf("failed to pull remote state: %w", err)
	}

	local := c.store.Snapshot()
	merged := merge.Merge(local, remoteSnap)
	if c.config.Resolver != nil {
		if conflicts := merge.Detect(local, remoteSnap); len(conflicts) > 0 {
			c.config.Logger.Printf("Resolving %d conflicting classrooms", len(conflicts))
			merge.Apply(merged, conflicts, c.config.Resolver)
		}
	}
	c.store.Replace(merged)

	var notice string
	if err := c.remote.Save(ctx, c.userID, c.store.Snapshot()); err != nil {
		var perr *remote.PartialError
		if !errors.As(err, &perr) {
			return "", fmt.Errorf("failed to push merged state: %w", err)
		}
		// A partial push keeps whatever committed; the failed count is
		// surfaced as a notice and retried on the next cycle.
		c.config.Logger.Printf("Warning: %v", perr)
		notice = perr.Error()
	}

	if err := c.local.Save(ctx, c.store.Snapshot()); err != nil {
		return "", fmt.Errorf("failed to persist merged state: %w", err)
	}
	return notice, nil
}

// Run periodically syncs until ctx is cancelled. While offline it probes
// connectivity at a shorter interval and syncs as soon as the backend is
// reachable again.
func (c *Controller) Run(ctx context.Context) error {
	syncTicker := time.NewTicker(c.config.SyncInterval)
	defer syncTicker.Stop()
	probeTicker := time.NewTicker(c.config.ProbeInterval)
	defer probeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-syncTicker.C:
			c.attempt(ctx)

		case <-probeTicker.C:
			if c.Status().State != StateOffline {
				continue
			}
			if c.probe(ctx) {
				c.config.Logger.Printf("Connectivity restored, syncing now")
				c.attempt(ctx)
			}
		}
	}
}

func (c *Controller) attempt(ctx context.Context) {
	err := c.SyncWithCloud(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInFlight), errors.Is(err, ErrOffline), errors.Is(err, ErrNoRemote):
		// expected, already reflected in the controller state
	default:
		// sync errors were logged by SyncWithCloud
	}
}

// Status returns the current controller status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:    c.state,
		LastSync: c.lastSync,
		Pending:  len(c.pending),
		Message:  c.message,
	}
}

// Subscribe registers a status listener. Each state transition is sent on
// the returned channel; slow listeners miss updates rather than blocking
// the controller. The cancel function unregisters the listener.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Controller) broadcast(st Status) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (c *Controller) probe(ctx context.Context) bool {
	if c.config.Probe == nil {
		return true
	}
	return c.config.Probe.Online(ctx)
}

// begin flips the controller into StateSyncing unless a sync is already
// running.
func (c *Controller) begin() bool {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.mu.Unlock()
		return false
	}
	c.state = StateSyncing
	c.message = ""
	st := c.statusLocked()
	c.mu.Unlock()
	c.broadcast(st)
	return true
}

func (c *Controller) finish(notice string) {
	c.mu.Lock()
	c.state = StateIdle
	c.lastSync = time.Now()
	c.message = notice
	c.pending = nil
	st := c.statusLocked()
	c.mu.Unlock()
	c.broadcast(st)
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.message = err.Error()
	st := c.statusLocked()
	c.mu.Unlock()
	c.broadcast(st)
}

func (c *Controller) setOffline(msg string) {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.mu.Unlock()
		return
	}
	c.state = StateOffline
	c.message = msg
	st := c.statusLocked()
	c.mu.Unlock()
	c.broadcast(st)
}
