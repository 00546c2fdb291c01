package syncer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("transient push failure")

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSaverDebounceCoalesces(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	cfg := quietConfig()
	cfg.DebounceInterval = 20 * time.Millisecond
	c := New(st, local, nil, "", cfg)
	s := NewSaver(c)

	for i := 0; i < 10; i++ {
		s.Save("grade updated")
	}

	if !waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&local.saves) == 1 }) {
		t.Fatalf("expected the burst to commit once, got %d saves", atomic.LoadInt32(&local.saves))
	}

	// Settle well past the window: still exactly one commit.
	time.Sleep(3 * cfg.DebounceInterval)
	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Errorf("expected exactly one commit, got %d", got)
	}
}

func TestSaverSeparateBurstsCommitSeparately(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	cfg := quietConfig()
	cfg.DebounceInterval = 10 * time.Millisecond
	c := New(st, local, nil, "", cfg)
	s := NewSaver(c)

	s.Save("first")
	if !waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&local.saves) == 1 }) {
		t.Fatal("first burst never committed")
	}
	s.Save("second")
	if !waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&local.saves) == 2 }) {
		t.Fatalf("second burst never committed, saves=%d", atomic.LoadInt32(&local.saves))
	}
}

func TestSaveNowCommitsImmediately(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	rm := &fakeRemote{}
	c := New(st, local, rm, "user-1", quietConfig())
	s := NewSaver(c)

	s.Save("queued edit")
	s.SaveNow("signing out")

	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Fatalf("expected one immediate commit folding in the queued edit, got %d", got)
	}
	if got := atomic.LoadInt32(&rm.saves); got != 1 {
		t.Errorf("expected one remote push, got %d", got)
	}

	// The queued edit was folded into SaveNow; nothing left to flush.
	time.Sleep(2 * DefaultConfig().DebounceInterval)
	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Errorf("queued edit committed twice, saves=%d", got)
	}
}

func TestSaveNowEachInvocationWrites(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	rm := &fakeRemote{}
	c := New(st, local, rm, "user-1", quietConfig())
	s := NewSaver(c)

	const n = 5
	for i := 0; i < n; i++ {
		s.SaveNow("signing out")
	}

	if got := atomic.LoadInt32(&local.saves); got != n {
		t.Errorf("expected %d immediate commits, got %d", n, got)
	}
	if got := atomic.LoadInt32(&rm.saves); got != n {
		t.Errorf("expected %d remote pushes, got %d", n, got)
	}
}

func TestSaverOfflineQueuesPending(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	rm := &fakeRemote{}
	probe := &fakeProbe{}
	cfg := quietConfig()
	cfg.Probe = probe
	c := New(st, local, rm, "user-1", cfg)
	s := NewSaver(c)

	s.SaveNow("attendance updated")

	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Errorf("offline save must still write locally, got %d saves", got)
	}
	if got := atomic.LoadInt32(&rm.saves); got != 0 {
		t.Errorf("offline save must not push, got %d pushes", got)
	}
	pending := c.Pending()
	if len(pending) != 1 || pending[0].Label != "attendance updated" {
		t.Errorf("expected the change queued as pending, got %+v", pending)
	}
	if c.Status().State != StateOffline {
		t.Errorf("expected offline state, got %s", c.Status().State)
	}
}

func TestSaverPushFailureQueuesPending(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	rm := &fakeRemote{saveErr: errTransient}
	c := New(st, local, rm, "user-1", quietConfig())
	s := NewSaver(c)

	s.SaveNow("lesson added")

	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Errorf("push failure must not skip the local write, got %d saves", got)
	}
	if got := c.PendingCount(); got != 1 {
		t.Errorf("expected the failed push queued as pending, got %d", got)
	}
}

func TestSaverLocalOnlyNeverPushes(t *testing.T) {
	st := seedStore(t, "7B")
	local := &fakeLocal{}
	c := New(st, local, nil, "", quietConfig())
	s := NewSaver(c)

	s.SaveNow("edit")

	if got := atomic.LoadInt32(&local.saves); got != 1 {
		t.Errorf("expected one local commit, got %d", got)
	}
	if got := c.PendingCount(); got != 0 {
		t.Errorf("local-only mode must not queue pending changes, got %d", got)
	}
}
