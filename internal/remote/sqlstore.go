package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// SQLStore is the production RecordStore: a remote libSQL database
// reached through the libsql driver (URL of the form
// libsql://<db>.<host>?authToken=<token>).
type SQLStore struct {
	conn *sql.DB
}

// OpenSQL connects to the remote database. The caller must Close when
// done. Schema provisioning is separate (InitSchema); an unprovisioned
// backend is tolerated by the adapter, not by this layer.
func OpenSQL(url string) (*SQLStore, error) {
	conn, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping remote database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &SQLStore{conn: conn}, nil
}

// Close closes the remote connection.
func (s *SQLStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// InitSchema provisions the remote tables. Idempotent.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS classrooms (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		subject TEXT,
		teacher_name TEXT,
		next_student_id INTEGER NOT NULL DEFAULT 1,
		next_lesson_id INTEGER NOT NULL DEFAULT 1,
		next_column_id INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (id, user_id)
	);

	CREATE TABLE IF NOT EXISTS students (
		classroom_id TEXT NOT NULL,
		student_number INTEGER NOT NULL,
		name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		parent_name TEXT,
		parent_phone TEXT,
		notes TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (classroom_id, student_number)
	);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT NOT NULL,
		classroom_id TEXT NOT NULL,
		lesson_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		lesson_date TEXT,
		mode TEXT NOT NULL DEFAULT 'standard',
		student_ids TEXT,  -- JSON array
		updated_at TEXT NOT NULL,
		PRIMARY KEY (classroom_id, lesson_number)
	);

	CREATE TABLE IF NOT EXISTS columns (
		classroom_id TEXT NOT NULL,
		column_number INTEGER NOT NULL,
		name TEXT NOT NULL,
		ielts INTEGER NOT NULL DEFAULT 0,
		lesson_seq INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (classroom_id, column_number)
	);

	CREATE TABLE IF NOT EXISTS grades (
		lesson_id TEXT NOT NULL,
		student_id INTEGER NOT NULL,
		column_id INTEGER NOT NULL,
		grade TEXT,
		PRIMARY KEY (lesson_id, student_id, column_id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		lesson_id TEXT NOT NULL,
		student_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (lesson_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS export_settings (
		user_id TEXT PRIMARY KEY,
		h REAL NOT NULL DEFAULT 0,
		s REAL NOT NULL DEFAULT 0,
		l REAL NOT NULL DEFAULT 0,
		a REAL NOT NULL DEFAULT 1,
		logo_data TEXT,
		logo_name TEXT,
		logo_size INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		full_name TEXT,
		school_name TEXT,
		role TEXT,
		onboarding_completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_classrooms_user ON classrooms(user_id);
	CREATE INDEX IF NOT EXISTS idx_students_classroom ON students(classroom_id);
	CREATE INDEX IF NOT EXISTS idx_lessons_classroom ON lessons(classroom_id);
	CREATE INDEX IF NOT EXISTS idx_columns_classroom ON columns(classroom_id);
	CREATE INDEX IF NOT EXISTS idx_grades_lesson ON grades(lesson_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_lesson ON attendance(lesson_id);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ..." for an IN list of n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FetchClassrooms implements RecordStore.
func (s *SQLStore) FetchClassrooms(ctx context.Context, userID string) ([]ClassroomRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(subject, ''), COALESCE(teacher_name, ''),
		       next_student_id, next_lesson_id, next_column_id, updated_at
		FROM classrooms WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClassroomRow
	for rows.Next() {
		var r ClassroomRow
		var updated string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Subject, &r.TeacherName,
			&r.NextStudentID, &r.NextLessonID, &r.NextColumnID, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan classroom row: %w", err)
		}
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchStudents implements RecordStore.
func (s *SQLStore) FetchStudents(ctx context.Context, classroomIDs []string) ([]StudentRow, error) {
	if len(classroomIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT classroom_id, student_number, name, COALESCE(phone, ''), COALESCE(email, ''),
		       COALESCE(parent_name, ''), COALESCE(parent_phone, ''), COALESCE(notes, ''), updated_at
		FROM students WHERE classroom_id IN (%s)`, placeholders(len(classroomIDs)))
	rows, err := s.conn.QueryContext(ctx, query, idArgs(classroomIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentRow
	for rows.Next() {
		var r StudentRow
		var updated string
		if err := rows.Scan(&r.ClassroomID, &r.StudentNumber, &r.Name, &r.Phone, &r.Email,
			&r.ParentName, &r.ParentPhone, &r.Notes, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchLessons implements RecordStore.
func (s *SQLStore) FetchLessons(ctx context.Context, classroomIDs []string) ([]LessonRow, error) {
	if len(classroomIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, classroom_id, lesson_number, title, COALESCE(lesson_date, ''),
		       mode, COALESCE(student_ids, ''), updated_at
		FROM lessons WHERE classroom_id IN (%s)`, placeholders(len(classroomIDs)))
	rows, err := s.conn.QueryContext(ctx, query, idArgs(classroomIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LessonRow
	for rows.Next() {
		var r LessonRow
		var updated, studentIDs string
		if err := rows.Scan(&r.ID, &r.ClassroomID, &r.LessonNumber, &r.Title, &r.LessonDate,
			&r.Mode, &studentIDs, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		r.UpdatedAt = parseTime(updated)
		if studentIDs != "" {
			if err := json.Unmarshal([]byte(studentIDs), &r.StudentIDs); err != nil {
				return nil, fmt.Errorf("failed to parse student_ids for lesson %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchColumns implements RecordStore.
func (s *SQLStore) FetchColumns(ctx context.Context, classroomIDs []string) ([]ColumnRow, error) {
	if len(classroomIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT classroom_id, column_number, name, ielts, lesson_seq, updated_at
		FROM columns WHERE classroom_id IN (%s)`, placeholders(len(classroomIDs)))
	rows, err := s.conn.QueryContext(ctx, query, idArgs(classroomIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ColumnRow
	for rows.Next() {
		var r ColumnRow
		var ielts int
		var updated string
		if err := rows.Scan(&r.ClassroomID, &r.ColumnNumber, &r.Name, &ielts, &r.LessonSeq, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		r.IELTS = ielts != 0
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchGrades implements RecordStore. Callers chunk lessonIDs.
func (s *SQLStore) FetchGrades(ctx context.Context, lessonIDs []string) ([]GradeRow, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT lesson_id, student_id, column_id, COALESCE(grade, '')
		FROM grades WHERE lesson_id IN (%s)`, placeholders(len(lessonIDs)))
	rows, err := s.conn.QueryContext(ctx, query, idArgs(lessonIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GradeRow
	for rows.Next() {
		var r GradeRow
		if err := rows.Scan(&r.LessonID, &r.StudentID, &r.ColumnID, &r.Grade); err != nil {
			return nil, fmt.Errorf("failed to scan grade row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchAttendance implements RecordStore. Callers chunk lessonIDs.
func (s *SQLStore) FetchAttendance(ctx context.Context, lessonIDs []string) ([]AttendanceRow, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT lesson_id, student_id, status
		FROM attendance WHERE lesson_id IN (%s)`, placeholders(len(lessonIDs)))
	rows, err := s.conn.QueryContext(ctx, query, idArgs(lessonIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRow
	for rows.Next() {
		var r AttendanceRow
		if err := rows.Scan(&r.LessonID, &r.StudentID, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchSettings implements RecordStore. Returns nil when the user has no
// settings row yet.
func (s *SQLStore) FetchSettings(ctx context.Context, userID string) (*SettingsRow, error) {
	var r SettingsRow
	var updated string
	err := s.conn.QueryRowContext(ctx, `
		SELECT user_id, h, s, l, a, COALESCE(logo_data, ''), COALESCE(logo_name, ''), logo_size, updated_at
		FROM export_settings WHERE user_id = ?`, userID).
		Scan(&r.UserID, &r.H, &r.S, &r.L, &r.A, &r.LogoData, &r.LogoName, &r.LogoSize, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// FetchProfile implements RecordStore. Returns nil when absent.
func (s *SQLStore) FetchProfile(ctx context.Context, userID string) (*ProfileRow, error) {
	var r ProfileRow
	var onboarding int
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, COALESCE(full_name, ''), COALESCE(school_name, ''), COALESCE(role, ''), onboarding_completed
		FROM profiles WHERE id = ?`, userID).
		Scan(&r.ID, &r.FullName, &r.SchoolName, &r.Role, &onboarding)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.OnboardingCompleted = onboarding != 0
	return &r, nil
}

// UpsertClassroom implements RecordStore.
func (s *SQLStore) UpsertClassroom(ctx context.Context, row ClassroomRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO classrooms (
			id, user_id, name, subject, teacher_name,
			next_student_id, next_lesson_id, next_column_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, user_id) DO UPDATE SET
			name = excluded.name,
			subject = excluded.subject,
			teacher_name = excluded.teacher_name,
			next_student_id = excluded.next_student_id,
			next_lesson_id = excluded.next_lesson_id,
			next_column_id = excluded.next_column_id,
			updated_at = excluded.updated_at`,
		row.ID, row.UserID, row.Name, row.Subject, row.TeacherName,
		row.NextStudentID, row.NextLessonID, row.NextColumnID,
		row.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// UpsertStudents implements RecordStore.
func (s *SQLStore) UpsertStudents(ctx context.Context, rows []StudentRow) error {
	for _, r := range rows {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO students (
				classroom_id, student_number, name, phone, email,
				parent_name, parent_phone, notes, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(classroom_id, student_number) DO UPDATE SET
				name = excluded.name,
				phone = excluded.phone,
				email = excluded.email,
				parent_name = excluded.parent_name,
				parent_phone = excluded.parent_phone,
				notes = excluded.notes,
				updated_at = excluded.updated_at`,
			r.ClassroomID, r.StudentNumber, r.Name, r.Phone, r.Email,
			r.ParentName, r.ParentPhone, r.Notes,
			r.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertLessons implements RecordStore.
func (s *SQLStore) UpsertLessons(ctx context.Context, rows []LessonRow) error {
	for _, r := range rows {
		var studentIDs []byte
		if r.StudentIDs != nil {
			var err error
			studentIDs, err = json.Marshal(r.StudentIDs)
			if err != nil {
				return fmt.Errorf("failed to marshal student_ids: %w", err)
			}
		}
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO lessons (
				id, classroom_id, lesson_number, title, lesson_date, mode, student_ids, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(classroom_id, lesson_number) DO UPDATE SET
				id = excluded.id,
				title = excluded.title,
				lesson_date = excluded.lesson_date,
				mode = excluded.mode,
				student_ids = excluded.student_ids,
				updated_at = excluded.updated_at`,
			r.ID, r.ClassroomID, r.LessonNumber, r.Title, r.LessonDate, r.Mode,
			string(studentIDs), r.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertColumns implements RecordStore.
func (s *SQLStore) UpsertColumns(ctx context.Context, rows []ColumnRow) error {
	for _, r := range rows {
		ielts := 0
		if r.IELTS {
			ielts = 1
		}
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO columns (classroom_id, column_number, name, ielts, lesson_seq, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(classroom_id, column_number) DO UPDATE SET
				name = excluded.name,
				ielts = excluded.ielts,
				lesson_seq = excluded.lesson_seq,
				updated_at = excluded.updated_at`,
			r.ClassroomID, r.ColumnNumber, r.Name, ielts, r.LessonSeq,
			r.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertGrades implements RecordStore.
func (s *SQLStore) UpsertGrades(ctx context.Context, rows []GradeRow) error {
	for _, r := range rows {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO grades (lesson_id, student_id, column_id, grade)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(lesson_id, student_id, column_id) DO UPDATE SET
				grade = excluded.grade`,
			r.LessonID, r.StudentID, r.ColumnID, r.Grade)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertAttendance implements RecordStore.
func (s *SQLStore) UpsertAttendance(ctx context.Context, rows []AttendanceRow) error {
	for _, r := range rows {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO attendance (lesson_id, student_id, status)
			VALUES (?, ?, ?)
			ON CONFLICT(lesson_id, student_id) DO UPDATE SET
				status = excluded.status`,
			r.LessonID, r.StudentID, r.Status)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertSettings implements RecordStore.
func (s *SQLStore) UpsertSettings(ctx context.Context, row SettingsRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO export_settings (user_id, h, s, l, a, logo_data, logo_name, logo_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			h = excluded.h, s = excluded.s, l = excluded.l, a = excluded.a,
			logo_data = excluded.logo_data,
			logo_name = excluded.logo_name,
			logo_size = excluded.logo_size,
			updated_at = excluded.updated_at`,
		row.UserID, row.H, row.S, row.L, row.A,
		row.LogoData, row.LogoName, row.LogoSize,
		row.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// UpsertProfile implements RecordStore.
func (s *SQLStore) UpsertProfile(ctx context.Context, row ProfileRow) error {
	onboarding := 0
	if row.OnboardingCompleted {
		onboarding = 1
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, school_name, role, onboarding_completed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			school_name = excluded.school_name,
			role = excluded.role,
			onboarding_completed = excluded.onboarding_completed`,
		row.ID, row.FullName, row.SchoolName, row.Role, onboarding)
	return err
}

// DeleteClassroom implements RecordStore: removes the classroom row and
// every child row referencing it.
func (s *SQLStore) DeleteClassroom(ctx context.Context, userID, classroomID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM grades WHERE lesson_id IN (SELECT id FROM lessons WHERE classroom_id = ?)`,
		classroomID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM attendance WHERE lesson_id IN (SELECT id FROM lessons WHERE classroom_id = ?)`,
		classroomID); err != nil {
		return err
	}
	for _, table := range []string{"students", "lessons", "columns"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE classroom_id = ?`, table), classroomID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM classrooms WHERE id = ? AND user_id = ?`, classroomID, userID); err != nil {
		return err
	}
	return tx.Commit()
}
