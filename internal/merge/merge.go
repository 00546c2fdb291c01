// Package merge reconciles two document store snapshots into one using
// last-writer-wins over per-entity timestamps.
//
// Merge is a pure function of its two inputs: it never consults the wall
// clock, only the UpdatedAt stamps already stored on entities, so running
// it twice on the same inputs yields the same result. It also never infers
// a deletion from absence; either side's absence may simply mean "hasn't
// synced that creation yet", so once created an entity is never silently
// dropped.
package merge

import (
	"github.com/markbook-app/markbook/internal/store"
)

// Merge reconciles a local and a remote snapshot. The result is freshly
// allocated and shares no entities with either input.
//
// Rules:
//   - nil remote: the local snapshot wins unchanged.
//   - NextID: max of both sides.
//   - Settings and profile: remote's when present, else local's, so a
//     second device's preference changes propagate.
//   - Classrooms: set union by id. Present on one side only: kept. Present
//     on both: the side with the strictly later UpdatedAt supplies the
//     top-level fields (ties favor local). When remote wins the parent,
//     its students and lessons are deep-merged against local's with the
//     same per-id rule; columns are taken wholesale from the winner, since
//     their local integer ids carry no remote-stable identity. When local
//     wins, its entire subtree is kept and remote child changes are
//     discarded.
func Merge(local, remote *store.Snapshot) *store.Snapshot {
	if local == nil {
		local = store.NewSnapshot()
	}
	if remote == nil {
		return local.Clone()
	}

	out := &store.Snapshot{NextID: local.NextID}
	if remote.NextID > out.NextID {
		out.NextID = remote.NextID
	}

	if remote.Settings != nil {
		cp := *remote.Settings
		out.Settings = &cp
	} else if local.Settings != nil {
		cp := *local.Settings
		out.Settings = &cp
	}
	if remote.Profile != nil {
		cp := *remote.Profile
		out.Profile = &cp
	} else if local.Profile != nil {
		cp := *local.Profile
		out.Profile = &cp
	}

	remoteByID := make(map[string]*store.Classroom, len(remote.Classrooms))
	for _, rc := range remote.Classrooms {
		remoteByID[rc.ID] = rc
	}
	localSeen := make(map[string]bool, len(local.Classrooms))

	out.Classrooms = make([]*store.Classroom, 0, len(local.Classrooms))
	for _, lc := range local.Classrooms {
		localSeen[lc.ID] = true
		rc, ok := remoteByID[lc.ID]
		if !ok {
			out.Classrooms = append(out.Classrooms, lc.Clone())
			continue
		}
		out.Classrooms = append(out.Classrooms, mergeClassroom(lc, rc))
	}
	for _, rc := range remote.Classrooms {
		if !localSeen[rc.ID] {
			out.Classrooms = append(out.Classrooms, rc.Clone())
		}
	}
	return out
}

// mergeClassroom reconciles one classroom present on both sides.
func mergeClassroom(local, remote *store.Classroom) *store.Classroom {
	if !remote.UpdatedAt.After(local.UpdatedAt) {
		// Local is newer or equal: the whole local subtree stands.
		return local.Clone()
	}

	out := remote.Clone()
	out.Students = mergeStudents(local.Students, remote.Students)
	out.Lessons = mergeLessons(local.Lessons, remote.Lessons)

	// Counters never move backwards, or a device could reuse a child id
	// that the other side already assigned.
	if local.NextStudentID > out.NextStudentID {
		out.NextStudentID = local.NextStudentID
	}
	if local.NextLessonID > out.NextLessonID {
		out.NextLessonID = local.NextLessonID
	}
	if local.NextColumnID > out.NextColumnID {
		out.NextColumnID = local.NextColumnID
	}
	return out
}

// mergeStudents applies the per-id union with strict-after tie-break.
func mergeStudents(local, remote []*store.Student) []*store.Student {
	remoteByID := make(map[int]*store.Student, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r
	}
	seen := make(map[int]bool, len(local))
	out := make([]*store.Student, 0, len(local))
	for _, l := range local {
		seen[l.ID] = true
		pick := l
		if r, ok := remoteByID[l.ID]; ok && r.UpdatedAt.After(l.UpdatedAt) {
			pick = r
		}
		cp := *pick
		out = append(out, &cp)
	}
	for _, r := range remote {
		if !seen[r.ID] {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// mergeLessons mirrors mergeStudents for the lesson collection.
func mergeLessons(local, remote []*store.Lesson) []*store.Lesson {
	remoteByID := make(map[int]*store.Lesson, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r
	}
	seen := make(map[int]bool, len(local))
	out := make([]*store.Lesson, 0, len(local))
	for _, l := range local {
		seen[l.ID] = true
		pick := l
		if r, ok := remoteByID[l.ID]; ok && r.UpdatedAt.After(l.UpdatedAt) {
			pick = r
		}
		out = append(out, pick.Clone())
	}
	for _, r := range remote {
		if !seen[r.ID] {
			out = append(out, r.Clone())
		}
	}
	return out
}
