package store

import "fmt"

// AttendanceStats aggregates one student's attendance across the lessons
// that apply to them. Attended counts present and late.
type AttendanceStats struct {
	Present  int `json:"present"`
	Late     int `json:"late"`
	Absent   int `json:"absent"`
	Attended int `json:"attended"`
	Total    int `json:"total"`
}

// Rate returns attendance as a whole-number percentage, 100 when the
// student has no applicable lessons yet.
func (a AttendanceStats) Rate() int {
	if a.Total == 0 {
		return 100
	}
	return a.Attended * 100 / a.Total
}

// StudentStats computes a student's attendance counters over every lesson
// whose roster snapshot includes them.
func (s *Store) StudentStats(classroomID string, studentID int) (AttendanceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return AttendanceStats{}, fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	if _, ok := s.idx.Student(classroomID, studentID); !ok {
		return AttendanceStats{}, fmt.Errorf("student %d in classroom %s: %w", studentID, classroomID, ErrNotFound)
	}
	return studentStats(c, studentID), nil
}

func studentStats(c *Classroom, studentID int) AttendanceStats {
	var stats AttendanceStats
	for _, l := range c.Lessons {
		if !l.AppliesTo(studentID) {
			continue
		}
		stats.Total++
		switch l.AttendanceOf(studentID) {
		case StatusLate:
			stats.Late++
			stats.Attended++
		case StatusAbsent:
			stats.Absent++
		default:
			stats.Present++
			stats.Attended++
		}
	}
	return stats
}

// ClassStatsRow is one roster line of the class report.
type ClassStatsRow struct {
	StudentID int    `json:"student_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	AttendanceStats
}

// ClassStats computes per-student attendance rows for a whole classroom,
// in roster order.
func (s *Store) ClassStats(classroomID string) ([]ClassStatsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.idx.Classroom(classroomID)
	if !ok {
		return nil, fmt.Errorf("classroom %s: %w", classroomID, ErrNotFound)
	}
	rows := make([]ClassStatsRow, 0, len(c.Students))
	for _, st := range c.Students {
		rows = append(rows, ClassStatsRow{
			StudentID:       st.ID,
			Name:            st.Name,
			Phone:           st.Phone,
			AttendanceStats: studentStats(c, st.ID),
		})
	}
	return rows, nil
}
