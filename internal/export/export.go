// Package export builds the precomputed report payloads consumed by the
// document generators. The generators are pure formatting over this
// shape; everything they need (ordered columns, resolved colors, display
// strings) is computed here so they never reach back into the store.
package export

import (
	"fmt"

	"github.com/markbook-app/markbook/internal/store"
)

// Color is the resolved accent triple used by report theming.
type Color struct {
	Base  string `json:"base"`
	Dark  string `json:"dark"`
	Light string `json:"light"`
}

// LessonRow is one roster line of a lesson report. Grades are ordered to
// match the payload's column list.
type LessonRow struct {
	StudentName string       `json:"student_name"`
	Attendance  store.Status `json:"attendance"`
	Grades      []string     `json:"grades"`
}

// ClassRow is one roster line of a class attendance report.
type ClassRow struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	AttendanceRate int    `json:"attendance_rate"`
	Present        int    `json:"present"`
	Late           int    `json:"late"`
	Absent         int    `json:"absent"`
	Total          int    `json:"total"`
}

// Payload is the report input shape. Type selects which row list is
// populated: "lesson" fills LessonRows, "class" fills ClassRows.
type Payload struct {
	Type        string      `json:"type"`
	Classroom   string      `json:"classroom"`
	Subject     string      `json:"subject,omitempty"`
	Teacher     string      `json:"teacher,omitempty"`
	Institution string      `json:"institution,omitempty"`
	Topic       string      `json:"topic,omitempty"`
	Date        string      `json:"date,omitempty"`
	Columns     []string    `json:"columns"`
	LessonRows  []LessonRow `json:"lesson_rows,omitempty"`
	ClassRows   []ClassRow  `json:"class_rows,omitempty"`
	Accent      Color       `json:"accent"`
	LogoData    string      `json:"logo_data,omitempty"`
	LogoName    string      `json:"logo_name,omitempty"`
}

// Builder assembles payloads from the live store.
type Builder struct {
	store *store.Store
}

// NewBuilder creates a payload builder over st.
func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

// Lesson builds the payload for one lesson's report: the lesson-scoped
// column list in classroom order, one row per rostered student with
// attendance and per-column grades.
func (b *Builder) Lesson(classroomID string, lessonID int) (*Payload, error) {
	c, err := b.store.Classroom(classroomID)
	if err != nil {
		return nil, err
	}
	var lesson *store.Lesson
	for _, l := range c.Lessons {
		if l.ID == lessonID {
			lesson = l
			break
		}
	}
	if lesson == nil {
		return nil, fmt.Errorf("lesson %d in classroom %s: %w", lessonID, classroomID, store.ErrNotFound)
	}

	// Classroom-wide columns apply to every lesson; IELTS columns only to
	// the lesson that created them.
	var cols []*store.Column
	for _, col := range c.Columns {
		if col.IELTS && col.LessonID != lesson.ID {
			continue
		}
		cols = append(cols, col)
	}

	p := b.newPayload("lesson", c)
	p.Topic = lesson.Topic
	p.Date = lesson.Date
	p.Columns = make([]string, len(cols))
	for i, col := range cols {
		p.Columns[i] = col.Name
	}
	for _, st := range c.Students {
		if !lesson.AppliesTo(st.ID) {
			continue
		}
		row := LessonRow{
			StudentName: st.Name,
			Attendance:  lesson.AttendanceOf(st.ID),
			Grades:      make([]string, len(cols)),
		}
		for i, col := range cols {
			row.Grades[i] = lesson.Grade(st.ID, col.ID)
		}
		p.LessonRows = append(p.LessonRows, row)
	}
	return p, nil
}

// Class builds the payload for a classroom attendance report: one row per
// student with attendance counters and rate, in roster order.
func (b *Builder) Class(classroomID string) (*Payload, error) {
	c, err := b.store.Classroom(classroomID)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.ClassStats(classroomID)
	if err != nil {
		return nil, err
	}

	p := b.newPayload("class", c)
	p.Columns = []string{"Name", "Phone", "Attendance", "Present", "Late", "Absent", "Total"}
	p.ClassRows = make([]ClassRow, 0, len(rows))
	for _, r := range rows {
		p.ClassRows = append(p.ClassRows, ClassRow{
			Name:           r.Name,
			Phone:          r.Phone,
			AttendanceRate: r.Rate(),
			Present:        r.Present,
			Late:           r.Late,
			Absent:         r.Absent,
			Total:          r.Total,
		})
	}
	return p, nil
}

func (b *Builder) newPayload(typ string, c *store.Classroom) *Payload {
	p := &Payload{
		Type:      typ,
		Classroom: c.Name,
		Subject:   c.Subject,
		Teacher:   c.Teacher,
	}
	settings := b.store.Settings()
	p.Accent = accentTriple(settings.Accent)
	if settings.LogoData != "" && logoWithinCap(settings) {
		p.LogoData = settings.LogoData
		p.LogoName = settings.LogoName
	}
	if profile := b.store.Profile(); profile != nil {
		p.Institution = profile.School
		if p.Teacher == "" {
			p.Teacher = profile.FullName
		}
	}
	return p
}

// logoWithinCap enforces the embedded-logo size cap; an oversized logo is
// dropped from the payload rather than failing the export.
func logoWithinCap(s store.Settings) bool {
	size := s.LogoSize
	if size == 0 {
		size = len(s.LogoData)
	}
	return size <= store.MaxLogoBytes
}

// accentTriple resolves the stored accent into the base/dark/light CSS
// strings reports theme with. A zero accent falls back to the default.
func accentTriple(h store.HSLA) Color {
	if (h == store.HSLA{}) {
		h = store.DefaultAccent
	}
	dark, light := h, h
	dark.L = max(0, h.L-15)
	light.L = min(95, h.L+25)
	return Color{Base: hsla(h), Dark: hsla(dark), Light: hsla(light)}
}

func hsla(h store.HSLA) string {
	return fmt.Sprintf("hsla(%g, %g%%, %g%%, %g)", h.H, h.S, h.L, h.A)
}
