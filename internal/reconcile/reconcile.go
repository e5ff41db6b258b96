// Package reconcile is the read-time merge of the three independent data
// sources: the cached page snapshot, the latest pushed engagement delta,
// and local optimistic adjustments. It is pure: it never mutates any of
// the underlying stores, which is what makes the three write paths safe
// to reason about in isolation.
package reconcile

import "github.com/roostlabs/roost/internal/models"

// Adjustment is the sum of active optimistic increments for one post.
// Each field is -1, 0, or +1 in practice.
type Adjustment struct {
	Likes     int64
	Reposts   int64
	Bookmarks int64
}

// IsZero reports whether no optimistic adjustment is active.
func (a Adjustment) IsZero() bool {
	return a == Adjustment{}
}

// Counts produces the display counters for a post. A delta, when present,
// replaces the cached snapshot wholesale; exactly one of the two is the
// base. The optimistic adjustment is added on top.
func Counts(snapshot models.EngagementCounts, delta *models.EngagementCounts, adj Adjustment) models.EngagementCounts {
	base := snapshot
	if delta != nil {
		base = *delta
	}
	base.Likes += adj.Likes
	base.Reposts += adj.Reposts
	base.Bookmarks += adj.Bookmarks
	return base
}
