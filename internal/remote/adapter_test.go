package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/markbook-app/markbook/internal/store"
)

// fakeStore is an in-memory RecordStore that records fetch chunk sizes
// and can inject failures per collection.
type fakeStore struct {
	classrooms []ClassroomRow
	students   []StudentRow
	lessons    []LessonRow
	columns    []ColumnRow
	grades     []GradeRow
	attendance []AttendanceRow
	settings   *SettingsRow
	profile    *ProfileRow

	gradeChunks      []int
	attendanceChunks []int

	failFetchClassrooms error
	failUpsertClassroom func(id string) error
}

func (f *fakeStore) FetchClassrooms(_ context.Context, userID string) ([]ClassroomRow, error) {
	if f.failFetchClassrooms != nil {
		return nil, f.failFetchClassrooms
	}
	var out []ClassroomRow
	for _, r := range f.classrooms {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func inSet(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (f *fakeStore) FetchStudents(_ context.Context, classroomIDs []string) ([]StudentRow, error) {
	var out []StudentRow
	for _, r := range f.students {
		if inSet(classroomIDs, r.ClassroomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchLessons(_ context.Context, classroomIDs []string) ([]LessonRow, error) {
	var out []LessonRow
	for _, r := range f.lessons {
		if inSet(classroomIDs, r.ClassroomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchColumns(_ context.Context, classroomIDs []string) ([]ColumnRow, error) {
	var out []ColumnRow
	for _, r := range f.columns {
		if inSet(classroomIDs, r.ClassroomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchGrades(_ context.Context, lessonIDs []string) ([]GradeRow, error) {
	f.gradeChunks = append(f.gradeChunks, len(lessonIDs))
	var out []GradeRow
	for _, r := range f.grades {
		if inSet(lessonIDs, r.LessonID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchAttendance(_ context.Context, lessonIDs []string) ([]AttendanceRow, error) {
	f.attendanceChunks = append(f.attendanceChunks, len(lessonIDs))
	var out []AttendanceRow
	for _, r := range f.attendance {
		if inSet(lessonIDs, r.LessonID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchSettings(_ context.Context, userID string) (*SettingsRow, error) {
	return f.settings, nil
}

func (f *fakeStore) FetchProfile(_ context.Context, userID string) (*ProfileRow, error) {
	return f.profile, nil
}

func (f *fakeStore) UpsertClassroom(_ context.Context, row ClassroomRow) error {
	if f.failUpsertClassroom != nil {
		if err := f.failUpsertClassroom(row.ID); err != nil {
			return err
		}
	}
	f.classrooms = append(f.classrooms, row)
	return nil
}

func (f *fakeStore) UpsertStudents(_ context.Context, rows []StudentRow) error {
	f.students = append(f.students, rows...)
	return nil
}

func (f *fakeStore) UpsertLessons(_ context.Context, rows []LessonRow) error {
	f.lessons = append(f.lessons, rows...)
	return nil
}

func (f *fakeStore) UpsertColumns(_ context.Context, rows []ColumnRow) error {
	f.columns = append(f.columns, rows...)
	return nil
}

func (f *fakeStore) UpsertGrades(_ context.Context, rows []GradeRow) error {
	f.grades = append(f.grades, rows...)
	return nil
}

func (f *fakeStore) UpsertAttendance(_ context.Context, rows []AttendanceRow) error {
	f.attendance = append(f.attendance, rows...)
	return nil
}

func (f *fakeStore) UpsertSettings(_ context.Context, row SettingsRow) error {
	f.settings = &row
	return nil
}

func (f *fakeStore) UpsertProfile(_ context.Context, row ProfileRow) error {
	f.profile = &row
	return nil
}

func (f *fakeStore) DeleteClassroom(_ context.Context, userID, classroomID string) error {
	kept := f.classrooms[:0]
	for _, r := range f.classrooms {
		if r.ID == classroomID && r.UserID == userID {
			continue
		}
		kept = append(kept, r)
	}
	f.classrooms = kept
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestLoadEmptyRemote(t *testing.T) {
	a := NewAdapter(&fakeStore{}, testLogger())
	snap, err := a.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Classrooms) != 0 {
		t.Errorf("expected empty snapshot, got %d classrooms", len(snap.Classrooms))
	}
}

func TestLoadEmptyRemoteKeepsProfileAndSettings(t *testing.T) {
	fs := &fakeStore{
		settings: &SettingsRow{UserID: "user-1", H: 340, S: 60, L: 50, A: 1},
		profile:  &ProfileRow{ID: "user-1", FullName: "Jane Doe", SchoolName: "Hillside", OnboardingCompleted: true},
	}
	a := NewAdapter(fs, testLogger())
	snap, err := a.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Classrooms) != 0 {
		t.Fatalf("expected no classrooms, got %d", len(snap.Classrooms))
	}
	if snap.Settings == nil || snap.Settings.Accent.H != 340 {
		t.Errorf("settings not pulled for empty account: %+v", snap.Settings)
	}
	if snap.Profile == nil || snap.Profile.FullName != "Jane Doe" || snap.Profile.School != "Hillside" {
		t.Errorf("profile not pulled for empty account: %+v", snap.Profile)
	}
	if snap.Profile != nil && !snap.Profile.OnboardingDone {
		t.Error("onboarding flag lost for empty account")
	}
}

func TestLoadMissingTablesTreatedAsEmpty(t *testing.T) {
	fs := &fakeStore{
		failFetchClassrooms: errors.New(`relation "public.classrooms" does not exist`),
	}
	a := NewAdapter(fs, testLogger())
	snap, err := a.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unprovisioned backend must degrade to empty, got: %v", err)
	}
	if len(snap.Classrooms) != 0 {
		t.Errorf("expected empty snapshot, got %d classrooms", len(snap.Classrooms))
	}
}

func TestLoadTransientErrorPropagates(t *testing.T) {
	fs := &fakeStore{failFetchClassrooms: errors.New("connection refused")}
	a := NewAdapter(fs, testLogger())
	if _, err := a.Load(context.Background(), "user-1"); err == nil {
		t.Error("transient network failure must abort the pull")
	}
}

// TestFetchChunking checks that a 60-lesson fetch issues exactly three
// chunked calls (25, 25, 10) and that the concatenated result equals an
// unchunked fetch.
func TestFetchChunking(t *testing.T) {
	fs := &fakeStore{
		classrooms: []ClassroomRow{{
			ID: "c1", UserID: "user-1", Name: "7B",
			NextStudentID: 1, NextLessonID: 61, NextColumnID: 1,
			UpdatedAt: time.Now(),
		}},
	}
	for i := 1; i <= 60; i++ {
		rid := fmt.Sprintf("c1:%d", i)
		fs.lessons = append(fs.lessons, LessonRow{
			ID: rid, ClassroomID: "c1", LessonNumber: i,
			Title: fmt.Sprintf("Lesson %d", i), Mode: "standard",
			UpdatedAt: time.Now(),
		})
		fs.grades = append(fs.grades, GradeRow{LessonID: rid, StudentID: 1, ColumnID: 1, Grade: "A"})
	}

	a := NewAdapter(fs, testLogger())
	snap, err := a.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []int{25, 25, 10}
	if len(fs.gradeChunks) != len(want) {
		t.Fatalf("expected %d grade fetches, got %v", len(want), fs.gradeChunks)
	}
	for i, n := range want {
		if fs.gradeChunks[i] != n {
			t.Errorf("chunk %d: got %d ids, want %d", i, fs.gradeChunks[i], n)
		}
	}

	total := 0
	for _, l := range snap.Classrooms[0].Lessons {
		total += len(l.Grades)
	}
	if total != 60 {
		t.Errorf("expected all 60 grade cells folded in, got %d", total)
	}
}

// TestRoundTrip pushes a snapshot and pulls it back, checking that the
// nested shape survives normalization.
func TestRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	snap := store.NewSnapshot()
	snap.Classrooms = []*store.Classroom{{
		ID: "c1", Name: "7B", Subject: "Math", Teacher: "Ms. Doe",
		Students: []*store.Student{
			{ID: 1, Name: "Ada", Email: "ada@example.com", UpdatedAt: now},
		},
		Lessons: []*store.Lesson{{
			ID: 1, Topic: "Fractions", Date: "2024-03-01", Seq: 1,
			Mode: store.ModeIELTS, StudentIDs: []int{1},
			Attendance: map[int]store.Status{1: store.StatusLate},
			Grades:     map[int]map[int]string{1: {1: "6.5"}},
			UpdatedAt:  now,
		}},
		Columns: []*store.Column{
			{ID: 1, Name: "Listening", IELTS: true, LessonID: 1, UpdatedAt: now},
			{ID: 2, Name: "Homework", UpdatedAt: now},
		},
		NextStudentID: 2, NextLessonID: 2, NextColumnID: 3,
		UpdatedAt: now,
	}}
	snap.Settings = &store.Settings{Accent: store.HSLA{H: 340, S: 60, L: 50, A: 1}, UpdatedAt: now}

	fs := &fakeStore{}
	a := NewAdapter(fs, testLogger())
	if err := a.Save(context.Background(), "user-1", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := a.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Classrooms) != 1 {
		t.Fatalf("expected 1 classroom, got %d", len(got.Classrooms))
	}
	c := got.Classrooms[0]
	if c.Name != "7B" || c.NextStudentID != 2 || c.NextColumnID != 3 {
		t.Errorf("classroom fields lost in round trip: %+v", c)
	}
	if len(c.Students) != 1 || c.Students[0].Name != "Ada" {
		t.Errorf("students lost in round trip: %+v", c.Students)
	}
	if len(c.Lessons) != 1 {
		t.Fatalf("lessons lost in round trip: %+v", c.Lessons)
	}
	l := c.Lessons[0]
	if l.AttendanceOf(1) != store.StatusLate {
		t.Errorf("attendance cell lost: %v", l.Attendance)
	}
	if l.Grade(1, 1) != "6.5" {
		t.Errorf("grade cell lost: %v", l.Grades)
	}
	var ielts *store.Column
	for _, col := range c.Columns {
		if col.IELTS {
			ielts = col
		}
	}
	if ielts == nil || ielts.LessonID != 1 {
		t.Errorf("IELTS column lesson reference not resolved from sequence number: %+v", ielts)
	}
	if got.Settings == nil || got.Settings.Accent.H != 340 {
		t.Errorf("settings lost in round trip: %+v", got.Settings)
	}
}

// TestSavePartialFailure verifies that one classroom's failure does not
// abort the push and is surfaced as an aggregate.
func TestSavePartialFailure(t *testing.T) {
	snap := store.NewSnapshot()
	for _, id := range []string{"c1", "c2", "c3"} {
		snap.Classrooms = append(snap.Classrooms, &store.Classroom{
			ID: id, Name: id, UpdatedAt: time.Now(),
			NextStudentID: 1, NextLessonID: 1, NextColumnID: 1,
		})
	}
	fs := &fakeStore{
		failUpsertClassroom: func(id string) error {
			if id == "c2" {
				return errors.New("boom")
			}
			return nil
		},
	}
	a := NewAdapter(fs, testLogger())
	err := a.Save(context.Background(), "user-1", snap)

	var perr *PartialError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if perr.Failed != 1 {
		t.Errorf("expected 1 failed classroom, got %d", perr.Failed)
	}
	if len(fs.classrooms) != 2 {
		t.Errorf("succeeding classrooms must stay committed, got %d", len(fs.classrooms))
	}
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{25, []int{25}},
		{26, []int{25, 1}},
		{60, []int{25, 25, 10}},
	}
	for _, tt := range tests {
		ids := make([]string, tt.n)
		for i := range ids {
			ids[i] = fmt.Sprintf("l%d", i)
		}
		chunks := chunkIDs(ids, 25)
		if len(chunks) != len(tt.want) {
			t.Errorf("n=%d: got %d chunks, want %d", tt.n, len(chunks), len(tt.want))
			continue
		}
		for i, c := range chunks {
			if len(c) != tt.want[i] {
				t.Errorf("n=%d chunk %d: got %d, want %d", tt.n, i, len(c), tt.want[i])
			}
		}
	}
}
