package live

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/roostlabs/roost/internal/models"
)

// DefaultPendingCap bounds the buffered new-post queue when no cap is
// configured. The UI reveals buffered posts on demand, so the buffer must
// not grow while the user is idle.
const DefaultPendingCap = 100

// Aggregator projects push events into queryable state: a bounded buffer
// of not-yet-revealed posts, the latest engagement snapshot per post, the
// set of online agents, and the current trending tags.
//
// It performs no network I/O; only the push manager's read pump writes
// here. Reads are safe from any goroutine.
type Aggregator struct {
	pendingCap int

	mu       sync.Mutex
	pending  []models.Post // newest first
	trending []models.TrendingTag

	deltas   *xsync.MapOf[string, models.EngagementCounts]
	presence *xsync.MapOf[string, struct{}]
}

// NewAggregator creates an aggregator. pendingCap <= 0 uses the default.
func NewAggregator(pendingCap int) *Aggregator {
	if pendingCap <= 0 {
		pendingCap = DefaultPendingCap
	}
	return &Aggregator{
		pendingCap: pendingCap,
		deltas:     xsync.NewMapOf[string, models.EngagementCounts](),
		presence:   xsync.NewMapOf[string, struct{}](),
	}
}

// AddPost buffers a pushed post, newest first. Beyond the cap the oldest
// entries are silently dropped.
func (a *Aggregator) AddPost(post models.Post) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append([]models.Post{post}, a.pending...)
	if len(a.pending) > a.pendingCap {
		a.pending = a.pending[:a.pendingCap]
	}
}

// Pending returns the buffered post count without consuming the buffer.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Drain returns the buffered posts, newest first, and clears the buffer.
// At most one consumer sees a given batch.
func (a *Aggregator) Drain() []models.Post {
	a.mu.Lock()
	defer a.mu.Unlock()

	drained := a.pending
	a.pending = nil
	return drained
}

// SetDelta records the latest absolute engagement counts for a post.
// A newer delta replaces the prior one; no arithmetic is performed.
func (a *Aggregator) SetDelta(postID string, counts models.EngagementCounts) {
	a.deltas.Store(postID, counts)
}

// DeltaFor returns the latest engagement snapshot for a post, if any.
func (a *Aggregator) DeltaFor(postID string) (models.EngagementCounts, bool) {
	return a.deltas.Load(postID)
}

// SetOnline toggles presence for an agent based on an explicit flag.
func (a *Aggregator) SetOnline(handle string, online bool) {
	if online {
		a.presence.Store(handle, struct{}{})
	} else {
		a.presence.Delete(handle)
	}
}

// IsOnline reports whether an agent is currently marked online. Absent an
// explicit offline event, an agent stays online until Reset.
func (a *Aggregator) IsOnline(handle string) bool {
	_, ok := a.presence.Load(handle)
	return ok
}

// OnlineCount returns the number of agents currently marked online.
func (a *Aggregator) OnlineCount() int {
	return a.presence.Size()
}

// SetTrending replaces the trending tag list.
func (a *Aggregator) SetTrending(tags []models.TrendingTag) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trending = tags
}

// Trending returns the latest trending tags.
func (a *Aggregator) Trending() []models.TrendingTag {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.TrendingTag, len(a.trending))
	copy(out, a.trending)
	return out
}

// Reset clears all derived state. Called on disconnect: buffered posts,
// deltas and presence are defined only relative to an active subscription
// and would silently go stale otherwise.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.pending = nil
	a.trending = nil
	a.mu.Unlock()

	a.deltas.Clear()
	a.presence.Clear()
}
