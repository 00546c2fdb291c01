package store

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a lookup by id misses. Callers treat it as
// "abort operation", not as a fault.
var ErrNotFound = errors.New("not found")

// Store is the document store service: it owns the snapshot, keeps the
// secondary index consistent, and is the single mutation entry point.
//
// Every mutation and the index rebuild that follows happen inside one
// critical section, so concurrent commands and a background sync always
// observe a consistent store-plus-index pair.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
	idx  *Index

	// now is a test seam for timestamp assignment.
	now func() time.Time
}

// New returns a store with an empty document.
func New() *Store {
	return FromSnapshot(NewSnapshot())
}

// FromSnapshot returns a store over an existing document, e.g. one loaded
// from local persistence. The snapshot is adopted, not copied.
func FromSnapshot(snap *Snapshot) *Store {
	if snap == nil {
		snap = NewSnapshot()
	}
	s := &Store{snap: snap, idx: NewIndex(), now: time.Now}
	s.idx.Rebuild(s.snap)
	return s
}

// Snapshot returns a deep copy of the current document, safe to hand to
// merge or persistence while mutations continue.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Replace swaps in a new document (typically a merge result) and rebuilds
// the index.
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == nil {
		snap = NewSnapshot()
	}
	s.snap = snap
	s.idx.Rebuild(s.snap)
}

// Classrooms returns copies of all classrooms in document order.
func (s *Store) Classrooms() []*Classroom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Classroom, len(s.snap.Classrooms))
	for i, c := range s.snap.Classrooms {
		out[i] = c.Clone()
	}
	return out
}

// Classroom returns a copy of the classroom with the given id.
func (s *Store) Classroom(id string) (*Classroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.idx.Classroom(id)
	if !ok {
		return nil, fmt.Errorf("classroom %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

// Settings returns a copy of the export settings, or defaults when none
// have been saved yet.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Settings == nil {
		return Settings{Accent: DefaultAccent}
	}
	return *s.snap.Settings
}

// SetSettings replaces the export settings. Oversized logos are rejected.
func (s *Store) SetSettings(in Settings) error {
	if in.LogoSize > MaxLogoBytes || len(in.LogoData) > MaxLogoBytes*4/3+4 {
		return fmt.Errorf("logo exceeds %d bytes", MaxLogoBytes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in.UpdatedAt = s.now()
	s.snap.Settings = &in
	return nil
}

// Profile returns a copy of the signed-in teacher's profile, or nil when
// no profile has been stored.
func (s *Store) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Profile == nil {
		return nil
	}
	cp := *s.snap.Profile
	return &cp
}

// SetProfile replaces the stored profile.
func (s *Store) SetProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Profile = &p
}

// CreateClassroom validates the input, assigns a fresh client id and
// initializes the child counters.
func (s *Store) CreateClassroom(in ClassroomInput) (*Classroom, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Classroom{
		ID:            NewClassroomID(),
		Name:          in.Name,
		Subject:       in.Subject,
		Teacher:       in.Teacher,
		Students:      []*Student{},
		Lessons:       []*Lesson{},
		Columns:       []*Column{},
		NextStudentID: 1,
		NextLessonID:  1,
		NextColumnID:  1,
		UpdatedAt:     s.now(),
	}
	s.snap.Classrooms = append(s.snap.Classrooms, c)
	s.snap.NextID++
	s.idx.Rebuild(s.snap)
	return c.Clone(), nil
}

// UpdateClassroom edits the classroom's own fields.
func (s *Store) UpdateClassroom(id string, in ClassroomInput) error {
	if err := checkInput(in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(id)
	if !ok {
		return fmt.Errorf("classroom %s: %w", id, ErrNotFound)
	}
	c.Name = in.Name
	c.Subject = in.Subject
	c.Teacher = in.Teacher
	c.UpdatedAt = s.now()
	return nil
}

// DeleteClassroom removes the classroom and, implicitly, its students,
// lessons and columns.
func (s *Store) DeleteClassroom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snap.Classrooms[:0]
	found := false
	for _, c := range s.snap.Classrooms {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("classroom %s: %w", id, ErrNotFound)
	}
	s.snap.Classrooms = kept
	s.idx.Rebuild(s.snap)
	return nil
}

// AddStudent appends a student to the roster with the next student id.
func (s *Store) AddStudent(classroomID string, in StudentInput) (*Student, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return nil, fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	st := &Student{
		ID:          c.NextStudentID,
		Name:        in.Name,
		Phone:       in.Phone,
		Email:       in.Email,
		ParentName:  in.ParentName,
		ParentPhone: in.ParentPhone,
		Note:        in.Note,
		UpdatedAt:   s.now(),
	}
	c.NextStudentID++
	c.Students = append(c.Students, st)
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	cp := *st
	return &cp, nil
}

// UpdateStudent edits a student's fields.
func (s *Store) UpdateStudent(classroomID string, id int, in StudentInput) error {
	if err := checkInput(in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.idx.Student(classroomID, id)
	if !ok {
		return fmt.Errorf("student %d in classroom %s: %w", id, classroomID, ErrNotFound)
	}
	st.Name = in.Name
	st.Phone = in.Phone
	st.Email = in.Email
	st.ParentName = in.ParentName
	st.ParentPhone = in.ParentPhone
	st.Note = in.Note
	st.UpdatedAt = s.now()
	return nil
}

// DeleteStudent removes a student from the roster. Attendance and grade
// cells referencing the student are left in place as orphans; lesson
// roster snapshots are not rewritten.
func (s *Store) DeleteStudent(classroomID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	kept := c.Students[:0]
	found := false
	for _, st := range c.Students {
		if st.ID == id {
			found = true
			continue
		}
		kept = append(kept, st)
	}
	if !found {
		return fmt.Errorf("student %d in classroom %s: %w", id, classroomID, ErrNotFound)
	}
	c.Students = kept
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	return nil
}

// AddLesson creates a lesson, snapshotting the current roster into
// StudentIDs. IELTS lessons get their sub-score columns created by the
// caller via AddColumn.
func (s *Store) AddLesson(classroomID string, in LessonInput) (*Lesson, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return nil, fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	mode := in.Mode
	if mode == "" {
		mode = ModeStandard
	}
	ids := make([]int, len(c.Students))
	for i, st := range c.Students {
		ids[i] = st.ID
	}
	// Seq is the client-visible lesson number. It tracks the id so the
	// remote's (classroom, lesson_number) natural key round-trips.
	l := &Lesson{
		ID:         c.NextLessonID,
		Topic:      in.Topic,
		Date:       in.Date,
		Seq:        c.NextLessonID,
		Mode:       mode,
		StudentIDs: ids,
		UpdatedAt:  s.now(),
	}
	c.NextLessonID++
	c.Lessons = append(c.Lessons, l)
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	return l.Clone(), nil
}

// DeleteLesson removes a lesson and cascades to the IELTS columns it
// created.
func (s *Store) DeleteLesson(classroomID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	kept := c.Lessons[:0]
	found := false
	for _, l := range c.Lessons {
		if l.ID == id {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		return fmt.Errorf("lesson %d in classroom %s: %w", id, classroomID, ErrNotFound)
	}
	c.Lessons = kept
	cols := c.Columns[:0]
	for _, col := range c.Columns {
		if col.IELTS && col.LessonID == id {
			continue
		}
		cols = append(cols, col)
	}
	c.Columns = cols
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	return nil
}

// AddColumn creates a grade column with the next column id.
func (s *Store) AddColumn(classroomID string, in ColumnInput) (*Column, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return nil, fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	if in.IELTS && in.LessonID != 0 {
		if _, ok := s.idx.Lesson(classroomID, in.LessonID); !ok {
			return nil, fmt.Errorf("lesson %d in classroom %s: %w", in.LessonID, classroomID, ErrNotFound)
		}
	}
	col := &Column{
		ID:        c.NextColumnID,
		Name:      in.Name,
		IELTS:     in.IELTS,
		UpdatedAt: s.now(),
	}
	if col.IELTS {
		col.LessonID = in.LessonID
	}
	c.NextColumnID++
	c.Columns = append(c.Columns, col)
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	cp := *col
	return &cp, nil
}

// DeleteColumn removes a column. Grade cells referencing it stay behind
// as orphans, matching the student-deletion policy.
func (s *Store) DeleteColumn(classroomID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	kept := c.Columns[:0]
	found := false
	for _, col := range c.Columns {
		if col.ID == id {
			found = true
			continue
		}
		kept = append(kept, col)
	}
	if !found {
		return fmt.Errorf("column %d in classroom %s: %w", id, classroomID, ErrNotFound)
	}
	c.Columns = kept
	c.UpdatedAt = s.now()
	s.idx.Rebuild(s.snap)
	return nil
}

// SetAttendance records a student's status for a lesson. The student must
// be part of the lesson's roster snapshot.
func (s *Store) SetAttendance(classroomID string, lessonID, studentID int, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid attendance status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idx.Lesson(classroomID, lessonID)
	if !ok {
		return fmt.Errorf("lesson %d in classroom %s: %w", lessonID, classroomID, ErrNotFound)
	}
	if !l.AppliesTo(studentID) {
		return fmt.Errorf("student %d is not part of lesson %d", studentID, lessonID)
	}
	if l.Attendance == nil {
		l.Attendance = make(map[int]Status)
	}
	l.Attendance[studentID] = status
	l.UpdatedAt = s.now()
	return nil
}

// SetGrade records a grade cell for (lesson, column, student). The value
// may be empty to clear a cell; IELTS columns only accept cells on their
// own lesson.
func (s *Store) SetGrade(classroomID string, lessonID, columnID, studentID int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idx.Lesson(classroomID, lessonID)
	if !ok {
		return fmt.Errorf("lesson %d in classroom %s: %w", lessonID, classroomID, ErrNotFound)
	}
	col, ok := s.idx.Column(classroomID, columnID)
	if !ok {
		return fmt.Errorf("column %d in classroom %s: %w", columnID, classroomID, ErrNotFound)
	}
	if col.IELTS && col.LessonID != lessonID {
		return fmt.Errorf("column %d belongs to lesson %d, not %d", columnID, col.LessonID, lessonID)
	}
	if !l.AppliesTo(studentID) {
		return fmt.Errorf("student %d is not part of lesson %d", studentID, lessonID)
	}
	l.setGrade(studentID, columnID, value)
	l.UpdatedAt = s.now()
	return nil
}
