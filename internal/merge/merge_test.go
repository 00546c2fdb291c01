package merge

import (
	"reflect"
	"testing"
	"time"

	"github.com/markbook-app/markbook/internal/store"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", s, err)
	}
	return v
}

func classroom(id, name string, updated time.Time) *store.Classroom {
	return &store.Classroom{
		ID:            id,
		Name:          name,
		Students:      []*store.Student{},
		Lessons:       []*store.Lesson{},
		Columns:       []*store.Column{},
		NextStudentID: 1,
		NextLessonID:  1,
		NextColumnID:  1,
		UpdatedAt:     updated,
	}
}

func snapshot(classrooms ...*store.Classroom) *store.Snapshot {
	return &store.Snapshot{Classrooms: classrooms, NextID: 1}
}

func TestMergeNilRemote(t *testing.T) {
	local := snapshot(classroom("c1", "7B", time.Now()))
	got := Merge(local, nil)
	if !reflect.DeepEqual(got, local) {
		t.Error("nil remote must yield the local snapshot unchanged")
	}
	if got == local || got.Classrooms[0] == local.Classrooms[0] {
		t.Error("result must not alias the input")
	}
}

func TestMergeIdempotent(t *testing.T) {
	x := snapshot(classroom("c1", "7B", ts(t, "2024-01-02T00:00:00Z")))
	x.Classrooms[0].Students = []*store.Student{
		{ID: 1, Name: "Ada", UpdatedAt: ts(t, "2024-01-01T00:00:00Z")},
	}
	x.Classrooms[0].Lessons = []*store.Lesson{
		{ID: 1, Topic: "Intro", Seq: 1, Mode: store.ModeStandard,
			StudentIDs: []int{1}, UpdatedAt: ts(t, "2024-01-01T12:00:00Z")},
	}

	got := Merge(x, x)
	if !reflect.DeepEqual(got, x) {
		t.Errorf("merge(X, X) != X:\n got %+v\nwant %+v", got, x)
	}
}

func TestMergeDisjointAddsCommute(t *testing.T) {
	a := snapshot(classroom("c1", "7B", ts(t, "2024-01-01T00:00:00Z")))
	b := snapshot(classroom("c2", "8A", ts(t, "2024-01-01T00:00:00Z")))

	ab := Merge(a, b)
	ba := Merge(b, a)

	if len(ab.Classrooms) != 2 || len(ba.Classrooms) != 2 {
		t.Fatalf("expected union of both classrooms, got %d and %d", len(ab.Classrooms), len(ba.Classrooms))
	}
	ids := func(s *store.Snapshot) map[string]bool {
		m := make(map[string]bool)
		for _, c := range s.Classrooms {
			m[c.ID] = true
		}
		return m
	}
	if !reflect.DeepEqual(ids(ab), ids(ba)) {
		t.Error("disjoint adds must commute")
	}
}

func TestMergeTimestampTieBreak(t *testing.T) {
	newer := classroom("c1", "newer", ts(t, "2024-01-02T00:00:00Z"))
	older := classroom("c1", "older", ts(t, "2024-01-01T00:00:00Z"))

	// Newer side wins top-level fields regardless of argument position.
	if got := Merge(snapshot(older), snapshot(newer)); got.Classrooms[0].Name != "newer" {
		t.Errorf("remote-newer: got %q, want newer", got.Classrooms[0].Name)
	}
	if got := Merge(snapshot(newer), snapshot(older)); got.Classrooms[0].Name != "newer" {
		t.Errorf("local-newer: got %q, want newer", got.Classrooms[0].Name)
	}

	// Equal timestamps favor local.
	same := classroom("c1", "local", ts(t, "2024-01-01T00:00:00Z"))
	remote := classroom("c1", "remote", ts(t, "2024-01-01T00:00:00Z"))
	if got := Merge(snapshot(same), snapshot(remote)); got.Classrooms[0].Name != "local" {
		t.Errorf("tie: got %q, want local", got.Classrooms[0].Name)
	}
}

func TestMergeZeroTimestampAlwaysLoses(t *testing.T) {
	stamped := classroom("c1", "stamped", ts(t, "2024-01-01T00:00:00Z"))
	unstamped := classroom("c1", "unstamped", time.Time{})

	if got := Merge(snapshot(unstamped), snapshot(stamped)); got.Classrooms[0].Name != "stamped" {
		t.Errorf("got %q, want stamped", got.Classrooms[0].Name)
	}
}

func TestMergeNeverDeletes(t *testing.T) {
	shared := classroom("c1", "7B", ts(t, "2024-01-01T00:00:00Z"))
	localOnly := classroom("c2", "local only", ts(t, "2024-01-01T00:00:00Z"))
	remoteOnly := classroom("c3", "remote only", ts(t, "2024-01-01T00:00:00Z"))

	got := Merge(snapshot(shared, localOnly), snapshot(shared.Clone(), remoteOnly))
	if len(got.Classrooms) != 3 {
		t.Fatalf("expected 3 classrooms, got %d", len(got.Classrooms))
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if got.Classroom(id) == nil {
			t.Errorf("classroom %s silently dropped by merge", id)
		}
	}
}

// TestMergeTwoDevices covers the second-device scenario: device B edited
// the classroom (newer parent) and added a student; device A's original
// student must survive the deep merge.
func TestMergeTwoDevices(t *testing.T) {
	t1 := ts(t, "2024-01-01T00:00:00Z")
	t2 := ts(t, "2024-01-02T00:00:00Z")

	a := snapshot(classroom("c1", "7B", t1))
	a.Classrooms[0].Students = []*store.Student{{ID: 1, Name: "Ada", UpdatedAt: t1}}
	a.Classrooms[0].NextStudentID = 2

	b := snapshot(classroom("c1", "7B", t2))
	b.Classrooms[0].Students = []*store.Student{
		{ID: 1, Name: "Ada", UpdatedAt: t1},
		{ID: 2, Name: "Bob", UpdatedAt: t2},
	}
	b.Classrooms[0].NextStudentID = 3

	got := Merge(a, b)
	if len(got.Classrooms) != 1 {
		t.Fatalf("expected 1 classroom, got %d", len(got.Classrooms))
	}
	c := got.Classrooms[0]
	if len(c.Students) != 2 {
		t.Fatalf("expected both students after merge, got %d", len(c.Students))
	}
	names := map[string]bool{}
	for _, st := range c.Students {
		names[st.Name] = true
	}
	if !names["Ada"] || !names["Bob"] {
		t.Errorf("expected Ada and Bob, got %v", names)
	}
	if c.NextStudentID != 3 {
		t.Errorf("counter must not move backwards: got %d, want 3", c.NextStudentID)
	}
}

func TestMergeLocalWinsKeepsLocalChildren(t *testing.T) {
	t1 := ts(t, "2024-01-01T00:00:00Z")
	t2 := ts(t, "2024-01-02T00:00:00Z")

	local := snapshot(classroom("c1", "7B", t2))
	local.Classrooms[0].Students = []*store.Student{{ID: 1, Name: "Ada", UpdatedAt: t1}}

	remote := snapshot(classroom("c1", "7B old", t1))
	remote.Classrooms[0].Students = []*store.Student{
		{ID: 1, Name: "Ada", UpdatedAt: t1},
		{ID: 2, Name: "Bob", UpdatedAt: t1},
	}

	// Local parent is newer: the local subtree stands and remote child
	// additions are discarded until a remote parent win replays them.
	got := Merge(local, remote)
	if len(got.Classrooms[0].Students) != 1 {
		t.Errorf("expected only local roster, got %d students", len(got.Classrooms[0].Students))
	}
}

func TestMergeNextIDAndSettings(t *testing.T) {
	local := snapshot()
	local.NextID = 7
	local.Settings = &store.Settings{Accent: store.HSLA{H: 1}, UpdatedAt: ts(t, "2024-01-01T00:00:00Z")}

	remote := snapshot()
	remote.NextID = 3
	remote.Settings = &store.Settings{Accent: store.HSLA{H: 2}, UpdatedAt: ts(t, "2023-01-01T00:00:00Z")}

	got := Merge(local, remote)
	if got.NextID != 7 {
		t.Errorf("NextID: got %d, want 7", got.NextID)
	}
	// Settings prefer remote when present, even if older.
	if got.Settings.Accent.H != 2 {
		t.Errorf("settings must prefer remote: got H=%v", got.Settings.Accent.H)
	}

	remote.Settings = nil
	got = Merge(local, remote)
	if got.Settings == nil || got.Settings.Accent.H != 1 {
		t.Error("settings must fall back to local when remote has none")
	}
}

type fixedResolver struct{ r Resolution }

func (f fixedResolver) Resolve(Conflict) Resolution { return f.r }

func TestDetectAndApplyConflicts(t *testing.T) {
	t1 := ts(t, "2024-01-01T00:00:00Z")
	t2 := ts(t, "2024-01-02T00:00:00Z")

	local := snapshot(classroom("c1", "local name", t1), classroom("c2", "same", t1))
	remote := snapshot(classroom("c1", "cloud name", t2), classroom("c2", "same", t1))

	conflicts := Detect(local, remote)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].ID != "c1" || conflicts[0].Type != "classroom" {
		t.Errorf("unexpected conflict record: %+v", conflicts[0])
	}

	merged := Merge(local, remote)
	if merged.Classroom("c1").Name != "cloud name" {
		t.Fatal("automatic merge should have adopted the newer cloud copy")
	}

	// The user insists on the local copy.
	Apply(merged, conflicts, fixedResolver{KeepLocal})
	if merged.Classroom("c1").Name != "local name" {
		t.Error("KeepLocal resolution not applied")
	}

	// KeepMerged leaves the automatic result alone.
	merged = Merge(local, remote)
	Apply(merged, conflicts, fixedResolver{KeepMerged})
	if merged.Classroom("c1").Name != "cloud name" {
		t.Error("KeepMerged must not rewrite the merged classroom")
	}
}
