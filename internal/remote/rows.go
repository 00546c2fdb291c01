// Package remote translates the nested document store shape to and from
// the normalized remote schema: flat per-user tables keyed by foreign ids.
//
// The remote backend itself is abstracted behind the RecordStore
// interface; the production implementation (SQLStore) speaks libSQL over
// the wire, and tests substitute an in-memory fake.
package remote

import (
	"context"
	"time"
)

// ClassroomRow is one row of the remote classrooms table, keyed by its
// own id plus the owning user id.
type ClassroomRow struct {
	ID            string
	UserID        string
	Name          string
	Subject       string
	TeacherName   string
	NextStudentID int
	NextLessonID  int
	NextColumnID  int
	UpdatedAt     time.Time
}

// StudentRow is keyed by (classroom_id, student_number).
type StudentRow struct {
	ClassroomID   string
	StudentNumber int
	Name          string
	Phone         string
	Email         string
	ParentName    string
	ParentPhone   string
	Notes         string
	UpdatedAt     time.Time
}

// LessonRow is keyed by (classroom_id, lesson_number). ID is the derived
// remote identifier ("<classroom_id>:<lesson_number>") that grade and
// attendance rows reference.
type LessonRow struct {
	ID           string
	ClassroomID  string
	LessonNumber int
	Title        string
	LessonDate   string
	Mode         string
	StudentIDs   []int
	UpdatedAt    time.Time
}

// ColumnRow is keyed by (classroom_id, column_number). LessonSeq carries
// the owning lesson's client-visible sequence number for IELTS columns
// (0 for classroom-wide columns); the local lesson id is resolved from it
// on pull, never from a remote row id.
type ColumnRow struct {
	ClassroomID  string
	ColumnNumber int
	Name         string
	IELTS        bool
	LessonSeq    int
	UpdatedAt    time.Time
}

// GradeRow is one grade cell, referencing its lesson by remote id.
type GradeRow struct {
	LessonID  string
	StudentID int
	ColumnID  int
	Grade     string
}

// AttendanceRow is one attendance cell, referencing its lesson by remote id.
type AttendanceRow struct {
	LessonID  string
	StudentID int
	Status    string
}

// SettingsRow is the singleton-per-user export preference row.
type SettingsRow struct {
	UserID     string
	H, S, L, A float64
	LogoData   string
	LogoName   string
	LogoSize   int
	UpdatedAt  time.Time
}

// ProfileRow is the per-user profile row.
type ProfileRow struct {
	ID                  string
	FullName            string
	SchoolName          string
	Role                string
	OnboardingCompleted bool
}

// RecordStore is the generic remote collaborator: fetch, upsert and
// delete rows per named collection, filtered by foreign key. All calls
// are remote I/O and honor their context.
//
// Fetches filtered by id lists accept lists of any size; callers are
// responsible for chunking when the backend limits filter-list sizes.
type RecordStore interface {
	FetchClassrooms(ctx context.Context, userID string) ([]ClassroomRow, error)
	FetchStudents(ctx context.Context, classroomIDs []string) ([]StudentRow, error)
	FetchLessons(ctx context.Context, classroomIDs []string) ([]LessonRow, error)
	FetchColumns(ctx context.Context, classroomIDs []string) ([]ColumnRow, error)
	FetchGrades(ctx context.Context, lessonIDs []string) ([]GradeRow, error)
	FetchAttendance(ctx context.Context, lessonIDs []string) ([]AttendanceRow, error)
	FetchSettings(ctx context.Context, userID string) (*SettingsRow, error)
	FetchProfile(ctx context.Context, userID string) (*ProfileRow, error)

	UpsertClassroom(ctx context.Context, row ClassroomRow) error
	UpsertStudents(ctx context.Context, rows []StudentRow) error
	UpsertLessons(ctx context.Context, rows []LessonRow) error
	UpsertColumns(ctx context.Context, rows []ColumnRow) error
	UpsertGrades(ctx context.Context, rows []GradeRow) error
	UpsertAttendance(ctx context.Context, rows []AttendanceRow) error
	UpsertSettings(ctx context.Context, row SettingsRow) error
	UpsertProfile(ctx context.Context, row ProfileRow) error

	// DeleteClassroom removes a classroom row and its child rows. Used by
	// explicit destructive operations only; sync never infers deletions.
	DeleteClassroom(ctx context.Context, userID, classroomID string) error
}
