package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/markbook-app/markbook/internal/store"
)

// fetchBatchSize caps the id-list size of a single grade/attendance
// fetch, to respect filter-list limits of the remote query interface.
const fetchBatchSize = 25

// IsMissingTable reports whether err is the backend's "expected tables
// don't exist yet" shape. This is the deliberate backend-not-provisioned
// tolerance: a pull hitting it degrades to an empty remote instead of a
// user-facing failure.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such table")
}

// PartialError aggregates per-classroom push failures. The push commits
// whatever succeeded; the caller surfaces the failed count as a notice.
type PartialError struct {
	Failed int
	err    error
}

// NewPartialError wraps err as a partial push failure covering n
// classrooms.
func NewPartialError(n int, err error) *PartialError {
	return &PartialError{Failed: n, err: err}
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d classrooms failed to sync: %v", e.Failed, e.err)
}

func (e *PartialError) Unwrap() error { return e.err }

// Adapter folds the normalized remote rows into document store snapshots
// and back.
type Adapter struct {
	rs     RecordStore
	logger *log.Logger
}

// NewAdapter creates an adapter over the given record store. If logger is
// nil, a default logger writing to stderr is used.
func NewAdapter(rs RecordStore, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Adapter{rs: rs, logger: logger}
}

// lessonRemoteID derives the remote lesson identifier referenced by grade
// and attendance rows.
func lessonRemoteID(classroomID string, seq int) string {
	return fmt.Sprintf("%s:%d", classroomID, seq)
}

// Load pulls the user's complete remote state and denormalizes it into a
// snapshot: classrooms by owner, then students/lessons/columns by the
// classroom ids just fetched, then grade/attendance cells by lesson ids
// in fixed-size chunks, folded back into each lesson's cell maps.
//
// A backend whose tables are not provisioned yet yields an empty
// snapshot, not an error.
func (a *Adapter) Load(ctx context.Context, userID string) (*store.Snapshot, error) {
	snap := store.NewSnapshot()

	crows, err := a.rs.FetchClassrooms(ctx, userID)
	if err != nil {
		if IsMissingTable(err) {
			a.logger.Printf("Remote tables not provisioned yet, treating as empty")
			return snap, nil
		}
		return nil, fmt.Errorf("failed to fetch classrooms: %w", err)
	}
	if len(crows) == 0 {
		// A fresh account may still carry settings and a completed
		// profile from another device.
		if settings, err := a.loadSettings(ctx, userID); err == nil {
			snap.Settings = settings
		}
		if prow, err := a.rs.FetchProfile(ctx, userID); err == nil && prow != nil {
			snap.Profile = profileFromRow(prow)
		}
		return snap, nil
	}

	classroomIDs := make([]string, 0, len(crows))
	byID := make(map[string]*store.Classroom, len(crows))
	for _, row := range crows {
		c := &store.Classroom{
			ID:            row.ID,
			Name:          row.Name,
			Subject:       row.Subject,
			Teacher:       row.TeacherName,
			Students:      []*store.Student{},
			Lessons:       []*store.Lesson{},
			Columns:       []*store.Column{},
			NextStudentID: row.NextStudentID,
			NextLessonID:  row.NextLessonID,
			NextColumnID:  row.NextColumnID,
			UpdatedAt:     row.UpdatedAt,
		}
		snap.Classrooms = append(snap.Classrooms, c)
		classroomIDs = append(classroomIDs, c.ID)
		byID[c.ID] = c
	}

	srows, err := a.rs.FetchStudents(ctx, classroomIDs)
	if err != nil && !IsMissingTable(err) {
		return nil, fmt.Errorf("failed to fetch students: %w", err)
	}
	for _, row := range srows {
		c := byID[row.ClassroomID]
		if c == nil {
			continue
		}
		c.Students = append(c.Students, &store.Student{
			ID:          row.StudentNumber,
			Name:        row.Name,
			Phone:       row.Phone,
			Email:       row.Email,
			ParentName:  row.ParentName,
			ParentPhone: row.ParentPhone,
			Note:        row.Notes,
			UpdatedAt:   row.UpdatedAt,
		})
	}

	lrows, err := a.rs.FetchLessons(ctx, classroomIDs)
	if err != nil && !IsMissingTable(err) {
		return nil, fmt.Errorf("failed to fetch lessons: %w", err)
	}
	lessonIDs := make([]string, 0, len(lrows))
	byRemoteID := make(map[string]*store.Lesson, len(lrows))
	for _, row := range lrows {
		c := byID[row.ClassroomID]
		if c == nil {
			continue
		}
		l := &store.Lesson{
			ID:         row.LessonNumber,
			Topic:      row.Title,
			Date:       row.LessonDate,
			Seq:        row.LessonNumber,
			Mode:       row.Mode,
			StudentIDs: row.StudentIDs,
			UpdatedAt:  row.UpdatedAt,
		}
		c.Lessons = append(c.Lessons, l)
		rid := row.ID
		if rid == "" {
			rid = lessonRemoteID(row.ClassroomID, row.LessonNumber)
		}
		lessonIDs = append(lessonIDs, rid)
		byRemoteID[rid] = l
	}

	colrows, err := a.rs.FetchColumns(ctx, classroomIDs)
	if err != nil && !IsMissingTable(err) {
		return nil, fmt.Errorf("failed to fetch columns: %w", err)
	}
	for _, row := range colrows {
		c := byID[row.ClassroomID]
		if c == nil {
			continue
		}
		col := &store.Column{
			ID:        row.ColumnNumber,
			Name:      row.Name,
			IELTS:     row.IELTS,
			UpdatedAt: row.UpdatedAt,
		}
		if row.IELTS && row.LessonSeq != 0 {
			// The remote reference is the lesson's client-visible
			// sequence number, never a remote row id.
			for _, l := range c.Lessons {
				if l.Seq == row.LessonSeq {
					col.LessonID = l.ID
					break
				}
			}
		}
		c.Columns = append(c.Columns, col)
	}

	grows, err := a.fetchGrades(ctx, lessonIDs)
	if err != nil && !IsMissingTable(err) {
		return nil, fmt.Errorf("failed to fetch grades: %w", err)
	}
	for _, row := range grows {
		if l := byRemoteID[row.LessonID]; l != nil {
			if l.Grades == nil {
				l.Grades = make(map[int]map[int]string)
			}
			if l.Grades[row.StudentID] == nil {
				l.Grades[row.StudentID] = make(map[int]string)
			}
			l.Grades[row.StudentID][row.ColumnID] = row.Grade
		}
	}

	arows, err := a.fetchAttendance(ctx, lessonIDs)
	if err != nil && !IsMissingTable(err) {
		return nil, fmt.Errorf("failed to fetch attendance: %w", err)
	}
	for _, row := range arows {
		if l := byRemoteID[row.LessonID]; l != nil {
			if l.Attendance == nil {
				l.Attendance = make(map[int]store.Status)
			}
			l.Attendance[row.StudentID] = store.Status(row.Status)
		}
	}

	if settings, err := a.loadSettings(ctx, userID); err == nil {
		snap.Settings = settings
	} else if !IsMissingTable(err) {
		a.logger.Printf("Warning: failed to fetch export settings: %v", err)
	}

	if prow, err := a.rs.FetchProfile(ctx, userID); err == nil && prow != nil {
		snap.Profile = profileFromRow(prow)
	}

	return snap, nil
}

func profileFromRow(row *ProfileRow) *store.Profile {
	return &store.Profile{
		FullName:       row.FullName,
		School:         row.SchoolName,
		Role:           row.Role,
		OnboardingDone: row.OnboardingCompleted,
	}
}

func (a *Adapter) loadSettings(ctx context.Context, userID string) (*store.Settings, error) {
	row, err := a.rs.FetchSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &store.Settings{
		Accent:    store.HSLA{H: row.H, S: row.S, L: row.L, A: row.A},
		LogoData:  row.LogoData,
		LogoName:  row.LogoName,
		LogoSize:  row.LogoSize,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// fetchGrades chunks the lesson id filter list into fixed-size batches.
func (a *Adapter) fetchGrades(ctx context.Context, lessonIDs []string) ([]GradeRow, error) {
	var out []GradeRow
	for _, chunk := range chunkIDs(lessonIDs, fetchBatchSize) {
		rows, err := a.rs.FetchGrades(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (a *Adapter) fetchAttendance(ctx context.Context, lessonIDs []string) ([]AttendanceRow, error) {
	var out []AttendanceRow
	for _, chunk := range chunkIDs(lessonIDs, fetchBatchSize) {
		rows, err := a.rs.FetchAttendance(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// chunkIDs splits ids into consecutive slices of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = fetchBatchSize
	}
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

// Save pushes the snapshot to the remote: one upsert per classroom keyed
// by its natural id, then upserts of the child rows. Per-classroom
// failures are collected, not fatal; whatever succeeded stays committed
// and the aggregate is returned as a PartialError.
func (a *Adapter) Save(ctx context.Context, userID string, snap *store.Snapshot) error {
	var failed []error
	for _, c := range snap.Classrooms {
		if err := a.saveClassroom(ctx, userID, c); err != nil {
			a.logger.Printf("Warning: failed to push classroom %s: %v", c.ID, err)
			failed = append(failed, fmt.Errorf("classroom %s: %w", c.ID, err))
		}
	}

	if snap.Settings != nil {
		s := snap.Settings
		row := SettingsRow{
			UserID:    userID,
			H:         s.Accent.H,
			S:         s.Accent.S,
			L:         s.Accent.L,
			A:         s.Accent.A,
			LogoData:  s.LogoData,
			LogoName:  s.LogoName,
			LogoSize:  s.LogoSize,
			UpdatedAt: s.UpdatedAt,
		}
		if err := a.rs.UpsertSettings(ctx, row); err != nil {
			a.logger.Printf("Warning: failed to push export settings: %v", err)
			failed = append(failed, fmt.Errorf("export settings: %w", err))
		}
	}

	if snap.Profile != nil {
		p := snap.Profile
		row := ProfileRow{
			ID:                  userID,
			FullName:            p.FullName,
			SchoolName:          p.School,
			Role:                p.Role,
			OnboardingCompleted: p.OnboardingDone,
		}
		if err := a.rs.UpsertProfile(ctx, row); err != nil {
			a.logger.Printf("Warning: failed to push profile: %v", err)
			failed = append(failed, fmt.Errorf("profile: %w", err))
		}
	}

	if len(failed) > 0 {
		return NewPartialError(len(failed), errors.Join(failed...))
	}
	return nil
}

func (a *Adapter) saveClassroom(ctx context.Context, userID string, c *store.Classroom) error {
	row := ClassroomRow{
		ID:            c.ID,
		UserID:        userID,
		Name:          c.Name,
		Subject:       c.Subject,
		TeacherName:   c.Teacher,
		NextStudentID: c.NextStudentID,
		NextLessonID:  c.NextLessonID,
		NextColumnID:  c.NextColumnID,
		UpdatedAt:     c.UpdatedAt,
	}
	if err := a.rs.UpsertClassroom(ctx, row); err != nil {
		return err
	}

	srows := make([]StudentRow, 0, len(c.Students))
	for _, st := range c.Students {
		srows = append(srows, StudentRow{
			ClassroomID:   c.ID,
			StudentNumber: st.ID,
			Name:          st.Name,
			Phone:         st.Phone,
			Email:         st.Email,
			ParentName:    st.ParentName,
			ParentPhone:   st.ParentPhone,
			Notes:         st.Note,
			UpdatedAt:     st.UpdatedAt,
		})
	}
	if err := a.rs.UpsertStudents(ctx, srows); err != nil {
		return fmt.Errorf("students: %w", err)
	}

	seqByLessonID := make(map[int]int, len(c.Lessons))
	lrows := make([]LessonRow, 0, len(c.Lessons))
	var grows []GradeRow
	var arows []AttendanceRow
	for _, l := range c.Lessons {
		seqByLessonID[l.ID] = l.Seq
		rid := lessonRemoteID(c.ID, l.Seq)
		lrows = append(lrows, LessonRow{
			ID:           rid,
			ClassroomID:  c.ID,
			LessonNumber: l.Seq,
			Title:        l.Topic,
			LessonDate:   l.Date,
			Mode:         l.Mode,
			StudentIDs:   l.StudentIDs,
			UpdatedAt:    l.UpdatedAt,
		})
		for sid, status := range l.Attendance {
			arows = append(arows, AttendanceRow{LessonID: rid, StudentID: sid, Status: string(status)})
		}
		for sid, cells := range l.Grades {
			for cid, v := range cells {
				grows = append(grows, GradeRow{LessonID: rid, StudentID: sid, ColumnID: cid, Grade: v})
			}
		}
	}
	if err := a.rs.UpsertLessons(ctx, lrows); err != nil {
		return fmt.Errorf("lessons: %w", err)
	}

	colrows := make([]ColumnRow, 0, len(c.Columns))
	for _, col := range c.Columns {
		row := ColumnRow{
			ClassroomID:  c.ID,
			ColumnNumber: col.ID,
			Name:         col.Name,
			IELTS:        col.IELTS,
			UpdatedAt:    col.UpdatedAt,
		}
		if col.IELTS && col.LessonID != 0 {
			row.LessonSeq = seqByLessonID[col.LessonID]
		}
		colrows = append(colrows, row)
	}
	if err := a.rs.UpsertColumns(ctx, colrows); err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	if err := a.rs.UpsertGrades(ctx, grows); err != nil {
		return fmt.Errorf("grades: %w", err)
	}
	if err := a.rs.UpsertAttendance(ctx, arows); err != nil {
		return fmt.Errorf("attendance: %w", err)
	}
	return nil
}

// Delete removes one classroom and its children from the remote. Invoked
// by explicit destructive operations; the sync path never calls it.
func (a *Adapter) Delete(ctx context.Context, userID, classroomID string) error {
	if err := a.rs.DeleteClassroom(ctx, userID, classroomID); err != nil {
		return fmt.Errorf("failed to delete classroom %s: %w", classroomID, err)
	}
	return nil
}
