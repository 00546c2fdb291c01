package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/markbook-app/markbook/internal/localdb"
	"github.com/markbook-app/markbook/internal/store"
)

// The serve loop persists locally after every sync, and that write lands
// on the very file the data watcher observes. Reloading must therefore
// only happen for another writer's change; reacting to our own saves
// would start a new sync, whose persist fires the watcher again, forever.
func TestReloadStoreSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "markbook.db")

	db, err := localdb.Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	st := store.New()
	s := &session{db: db, store: st}

	// Another process adds a classroom.
	other, err := localdb.Open(path)
	if err != nil {
		t.Fatalf("failed to open second handle: %v", err)
	}
	ext := store.New()
	if _, err := ext.CreateClassroom(store.ClassroomInput{Name: "7B"}); err != nil {
		t.Fatalf("CreateClassroom failed: %v", err)
	}
	if err := other.Save(ctx, ext.Snapshot()); err != nil {
		t.Fatalf("Save on second handle failed: %v", err)
	}
	if err := other.Close(); err != nil {
		t.Fatalf("Close of second handle failed: %v", err)
	}

	reloadStore(ctx, s, quietLogger())
	if got := len(st.Classrooms()); got != 1 {
		t.Fatalf("external write not reloaded, classrooms=%d", got)
	}

	// Persist through our own handle, then mutate in memory only. A
	// reload triggered by our own save would clobber the unsaved edit.
	if err := db.Save(ctx, st.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := st.CreateClassroom(store.ClassroomInput{Name: "8A"}); err != nil {
		t.Fatalf("CreateClassroom failed: %v", err)
	}

	reloadStore(ctx, s, quietLogger())
	if got := len(st.Classrooms()); got != 2 {
		t.Fatalf("own write triggered a reload and clobbered the store, classrooms=%d", got)
	}
}
