// Package backlink implements backlink extraction: scanning page content for
// reference markers, resolving them against the pages of a database and
// building the replacement edge set for the source page.
package backlink

import (
	"time"

	"github.com/google/uuid"
)

// namespace scopes the name-based backlink ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("graphsync/backlink"))

// Backlink records that the content of SourcePageID references TargetPageID.
// The (SourcePageID, TargetPageID) pair is unique.
type Backlink struct {
	ID              string    `json:"id"`
	SourcePageID    string    `json:"sourcePageId"`
	SourcePageTitle string    `json:"sourcePageTitle"`
	TargetPageID    string    `json:"targetPageId"`
	Context         string    `json:"context,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ID derives the stable id of the edge from source to target. The same
// pair always yields the same id, so re-extraction never changes it.
func ID(sourcePageID, targetPageID string) string {
	return uuid.NewSHA1(namespace, []byte(sourcePageID+"\x00"+targetPageID)).String()
}

// Key identifies a backlink by its endpoints.
type Key struct {
	Source string
	Target string
}

// Key returns the endpoint pair of the backlink.
func (b Backlink) Key() Key {
	return Key{Source: b.SourcePageID, Target: b.TargetPageID}
}

// Dedupe drops repeated (source, target) pairs, keeping the first occurrence,
// and fills in missing ids.
func Dedupe(links []Backlink) []Backlink {
	seen := make(map[Key]struct{}, len(links))
	out := make([]Backlink, 0, len(links))
	for _, l := range links {
		if _, dup := seen[l.Key()]; dup {
			continue
		}
		seen[l.Key()] = struct{}{}
		if l.ID == "" {
			l.ID = ID(l.SourcePageID, l.TargetPageID)
		}
		out = append(out, l)
	}
	return out
}

// PreserveCreated copies creation timestamps from previously stored edges
// onto recomputed edges with the same endpoints.
func PreserveCreated(fresh, previous []Backlink) []Backlink {
	if len(previous) == 0 {
		return fresh
	}
	created := make(map[Key]time.Time, len(previous))
	for _, p := range previous {
		created[p.Key()] = p.CreatedAt
	}
	out := make([]Backlink, len(fresh))
	for i, f := range fresh {
		if ts, ok := created[f.Key()]; ok && !ts.IsZero() {
			f.CreatedAt = ts
		}
		out[i] = f
	}
	return out
}
