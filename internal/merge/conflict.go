package merge

import (
	"github.com/markbook-app/markbook/internal/store"
)

// Conflict records a classroom present on both sides with differing
// timestamps. Conflicts are advisory: the automatic merge already resolved
// them by timestamp, and a Resolver may override that disposition before
// the push step.
type Conflict struct {
	Type  string           `json:"type"` // currently always "classroom"
	ID    string           `json:"id"`
	Local *store.Classroom `json:"local"`
	Cloud *store.Classroom `json:"cloud"`
}

// Resolution is a per-conflict disposition.
type Resolution int

const (
	// KeepMerged accepts the automatic timestamp-based result.
	KeepMerged Resolution = iota
	// KeepLocal overwrites the merged classroom with the local copy.
	KeepLocal
	// KeepCloud overwrites the merged classroom with the cloud copy.
	KeepCloud
)

// Resolver decides the disposition of one conflict, e.g. by prompting the
// user. A nil resolver leaves every conflict at KeepMerged.
type Resolver interface {
	Resolve(c Conflict) Resolution
}

// Detect compares local and remote classroom by classroom and surfaces
// every id present on both sides whose timestamps differ.
func Detect(local, remote *store.Snapshot) []Conflict {
	if local == nil || remote == nil {
		return nil
	}
	remoteByID := make(map[string]*store.Classroom, len(remote.Classrooms))
	for _, rc := range remote.Classrooms {
		remoteByID[rc.ID] = rc
	}
	var conflicts []Conflict
	for _, lc := range local.Classrooms {
		rc, ok := remoteByID[lc.ID]
		if !ok {
			continue
		}
		if !lc.UpdatedAt.Equal(rc.UpdatedAt) {
			conflicts = append(conflicts, Conflict{
				Type:  "classroom",
				ID:    lc.ID,
				Local: lc.Clone(),
				Cloud: rc.Clone(),
			})
		}
	}
	return conflicts
}

// Apply rewrites classrooms in the merged snapshot according to each
// conflict's resolution. KeepMerged leaves the automatic result in place.
func Apply(merged *store.Snapshot, conflicts []Conflict, r Resolver) {
	if merged == nil || r == nil {
		return
	}
	for _, c := range conflicts {
		var pick *store.Classroom
		switch r.Resolve(c) {
		case KeepLocal:
			pick = c.Local
		case KeepCloud:
			pick = c.Cloud
		default:
			continue
		}
		for i, mc := range merged.Classrooms {
			if mc.ID == c.ID {
				merged.Classrooms[i] = pick.Clone()
				break
			}
		}
	}
}
