package store

// Index is the secondary index: derived by-id lookup maps rebuilt from the
// snapshot after every structural mutation. It is a pure cache, never a
// source of truth; absence from a lookup means "not found, abort operation"
// rather than an error.
type Index struct {
	classrooms map[string]*Classroom
	students   map[string]map[int]*Student
	lessons    map[string]map[int]*Lesson
	columns    map[string]map[int]*Column
}

// NewIndex returns an empty index. Call Rebuild before the first lookup.
func NewIndex() *Index {
	idx := &Index{}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.classrooms = make(map[string]*Classroom)
	idx.students = make(map[string]map[int]*Student)
	idx.lessons = make(map[string]map[int]*Lesson)
	idx.columns = make(map[string]map[int]*Column)
}

// Rebuild fully replaces the index state from the given snapshot.
// The indexed values are the snapshot's own entity pointers, so a lookup
// returns the same reference a linear scan of the snapshot would.
func (idx *Index) Rebuild(snap *Snapshot) {
	idx.reset()
	if snap == nil {
		return
	}
	for _, c := range snap.Classrooms {
		idx.classrooms[c.ID] = c

		byStudent := make(map[int]*Student, len(c.Students))
		for _, st := range c.Students {
			byStudent[st.ID] = st
		}
		idx.students[c.ID] = byStudent

		byLesson := make(map[int]*Lesson, len(c.Lessons))
		for _, l := range c.Lessons {
			byLesson[l.ID] = l
		}
		idx.lessons[c.ID] = byLesson

		byColumn := make(map[int]*Column, len(c.Columns))
		for _, col := range c.Columns {
			byColumn[col.ID] = col
		}
		idx.columns[c.ID] = byColumn
	}
}

// Classroom looks up a classroom by id.
func (idx *Index) Classroom(id string) (*Classroom, bool) {
	c, ok := idx.classrooms[id]
	return c, ok
}

// Student looks up a student by classroom and student id.
func (idx *Index) Student(classroomID string, id int) (*Student, bool) {
	st, ok := idx.students[classroomID][id]
	return st, ok
}

// Lesson looks up a lesson by classroom and lesson id.
func (idx *Index) Lesson(classroomID string, id int) (*Lesson, bool) {
	l, ok := idx.lessons[classroomID][id]
	return l, ok
}

// Column looks up a column by classroom and column id.
func (idx *Index) Column(classroomID string, id int) (*Column, bool) {
	col, ok := idx.columns[classroomID][id]
	return col, ok
}
