// Package store implements the in-memory document store for markbook.
//
// The store holds the complete application state tree: classrooms with
// their nested students, lessons and columns, plus export settings and
// the teacher profile. State is mutated optimistically by commands and
// reconciled against the remote copy by the merge engine.
//
// Fields carry last-write-wins semantics: every direct mutation of an
// entity stamps its UpdatedAt, and that timestamp is the sole tie-break
// signal during merge. An entity with a zero UpdatedAt is treated as
// oldest possible and always loses a conflict.
package store

import (
	"time"
)

// Status is a per-lesson attendance status for one student.
type Status string

const (
	// StatusPresent is the default when no status has been recorded.
	StatusPresent Status = "present"
	// StatusLate counts as attended for rate calculations.
	StatusLate Status = "late"
	// StatusAbsent does not count as attended.
	StatusAbsent Status = "absent"
)

// Valid reports whether s is one of the known attendance statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// Classroom is the top-level owned aggregate: a roster of students, a
// sequence of lessons and a set of grade columns.
//
// The classroom ID is either client-generated (timestamp+random composite,
// see NewClassroomID) or a remote-assigned opaque id. Child entities use
// small integer ids assigned from the classroom's monotonic counters,
// independent of the classroom's own id scheme.
type Classroom struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Teacher string `json:"teacher,omitempty"`

	Students []*Student `json:"students"`
	Lessons  []*Lesson  `json:"lessons"`
	Columns  []*Column  `json:"columns"`

	// Monotonic counters for child id assignment. Start at 1.
	NextStudentID int `json:"next_student_id"`
	NextLessonID  int `json:"next_lesson_id"`
	NextColumnID  int `json:"next_column_id"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Student is a roster member. Referenced (never owned) by lesson
// StudentIDs snapshots and by attendance/grade cells.
type Student struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	ParentName  string    `json:"parent_name,omitempty"`
	ParentPhone string    `json:"parent_phone,omitempty"`
	Note        string    `json:"note,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LessonMode selects between a standard lesson and an IELTS lesson with
// per-lesson sub-score columns.
const (
	ModeStandard = "standard"
	ModeIELTS    = "ielts"
)

// Lesson is a single class meeting with attendance and grade cells.
//
// StudentIDs is a snapshot of roster membership taken at creation time.
// It determines which students' cells are meaningful for this lesson and
// is never mutated afterwards; lessons created before this field existed
// have a nil slice, which implicitly includes all current roster members.
//
// Attendance and Grades are composite-keyed cell maps: attendance by
// student id, grades by student id then column id. A student missing from
// Attendance is present. Cells for students deleted later remain in the
// maps as harmless orphans.
type Lesson struct {
	ID         int    `json:"id"`
	Topic      string `json:"topic"`
	Date       string `json:"date,omitempty"` // YYYY-MM-DD
	Seq        int    `json:"seq"`
	Mode       string `json:"mode"`
	StudentIDs []int  `json:"student_ids,omitempty"`

	Attendance map[int]Status         `json:"attendance,omitempty"`
	Grades     map[int]map[int]string `json:"grades,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AppliesTo reports whether studentID belongs to this lesson's roster
// snapshot. Lessons without a snapshot apply to every student.
func (l *Lesson) AppliesTo(studentID int) bool {
	if l.StudentIDs == nil {
		return true
	}
	for _, id := range l.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// AttendanceOf returns the recorded status for studentID, defaulting to
// present when no cell exists.
func (l *Lesson) AttendanceOf(studentID int) Status {
	if st, ok := l.Attendance[studentID]; ok {
		return st
	}
	return StatusPresent
}

// Grade returns the grade cell for (studentID, columnID), or "" when
// no value has been entered.
func (l *Lesson) Grade(studentID, columnID int) string {
	return l.Grades[studentID][columnID]
}

// setGrade writes a grade cell, allocating the nested maps on demand.
func (l *Lesson) setGrade(studentID, columnID int, value string) {
	if l.Grades == nil {
		l.Grades = make(map[int]map[int]string)
	}
	if l.Grades[studentID] == nil {
		l.Grades[studentID] = make(map[int]string)
	}
	l.Grades[studentID][columnID] = value
}

// Column is a grade column. Standard columns are classroom-wide and apply
// to every lesson uniformly; IELTS columns carry the id of the lesson that
// created them and are scoped to that lesson only.
type Column struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IELTS     bool      `json:"ielts,omitempty"`
	LessonID  int       `json:"lesson_id,omitempty"` // 0 = classroom-wide
	UpdatedAt time.Time `json:"updated_at"`
}

// HSLA is the export accent color as stored in settings.
type HSLA struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	L float64 `json:"l"`
	A float64 `json:"a"`
}

// MaxLogoBytes caps the embedded report logo.
const MaxLogoBytes = 500 * 1024

// Settings holds per-user export preferences: accent color and report logo.
type Settings struct {
	Accent    HSLA      `json:"accent"`
	LogoData  string    `json:"logo_data,omitempty"` // base64 image data
	LogoName  string    `json:"logo_name,omitempty"`
	LogoSize  int       `json:"logo_size,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAccent is the accent color used until the user picks one.
var DefaultAccent = HSLA{H: 210, S: 70, L: 45, A: 1}

// Profile is the signed-in teacher's identity and onboarding state.
type Profile struct {
	FullName       string `json:"full_name,omitempty"`
	School         string `json:"school_name,omitempty"`
	Role           string `json:"role,omitempty"`
	OnboardingDone bool   `json:"onboarding_completed,omitempty"`
}

// Snapshot is the complete document store state: everything that gets
// persisted locally and mirrored to the remote.
type Snapshot struct {
	Classrooms []*Classroom `json:"classrooms"`
	Settings   *Settings    `json:"settings,omitempty"`
	Profile    *Profile     `json:"profile,omitempty"`

	// NextID feeds the client-side classroom id scheme. Merge takes the
	// max of both sides so two devices never reuse a sequence value.
	NextID int64 `json:"next_id"`
}

// NewSnapshot returns an empty document with counters initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{Classrooms: []*Classroom{}, NextID: 1}
}

// Classroom returns the classroom with the given id, or nil.
// This is a linear scan; use the Index for repeated lookups.
func (s *Snapshot) Classroom(id string) *Classroom {
	for _, c := range s.Classrooms {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot. Merge and persistence work
// on clones so in-flight syncs never observe a half-applied mutation.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Classrooms: make([]*Classroom, len(s.Classrooms)),
		NextID:     s.NextID,
	}
	for i, c := range s.Classrooms {
		out.Classrooms[i] = c.Clone()
	}
	if s.Settings != nil {
		cp := *s.Settings
		out.Settings = &cp
	}
	if s.Profile != nil {
		cp := *s.Profile
		out.Profile = &cp
	}
	return out
}

// Clone returns a deep copy of the classroom subtree.
func (c *Classroom) Clone() *Classroom {
	if c == nil {
		return nil
	}
	out := *c
	out.Students = make([]*Student, len(c.Students))
	for i, st := range c.Students {
		cp := *st
		out.Students[i] = &cp
	}
	out.Lessons = make([]*Lesson, len(c.Lessons))
	for i, l := range c.Lessons {
		out.Lessons[i] = l.Clone()
	}
	out.Columns = make([]*Column, len(c.Columns))
	for i, col := range c.Columns {
		cp := *col
		out.Columns[i] = &cp
	}
	return &out
}

// Clone returns a deep copy of the lesson including its cell maps.
func (l *Lesson) Clone() *Lesson {
	if l == nil {
		return nil
	}
	out := *l
	if l.StudentIDs != nil {
		out.StudentIDs = append([]int(nil), l.StudentIDs...)
	}
	if l.Attendance != nil {
		out.Attendance = make(map[int]Status, len(l.Attendance))
		for k, v := range l.Attendance {
			out.Attendance[k] = v
		}
	}
	if l.Grades != nil {
		out.Grades = make(map[int]map[int]string, len(l.Grades))
		for sid, row := range l.Grades {
			cp := make(map[int]string, len(row))
			for cid, v := range row {
				cp[cid] = v
			}
			out.Grades[sid] = cp
		}
	}
	return &out
}
