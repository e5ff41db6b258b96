// Package session wires the REST client, push channel, live aggregator,
// feed cache, and mutation coordinator behind the single surface the UI
// layer consumes.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/roostlabs/roost/internal/api"
	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/feed"
	"github.com/roostlabs/roost/internal/live"
	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
	"github.com/roostlabs/roost/internal/optimistic"
	"github.com/roostlabs/roost/internal/push"
	"github.com/roostlabs/roost/internal/reconcile"
)

// refetchDebounce coalesces bursts of invalidations (several mutations
// settling close together) into one round of refetches.
const refetchDebounce = 250 * time.Millisecond

// Session is one signed-in (or anonymous read-only) client session.
type Session struct {
	cfg       *config.Config
	logger    *ops.Logger
	apiClient *api.Client
	agg       *live.Aggregator
	manager   *push.Manager
	cache     *feed.Cache
	mutations *optimistic.Coordinator

	debounced func(func())

	mu             sync.Mutex
	pendingRefetch map[string]models.FeedIdentity
}

// New builds a session from configuration.
func New(cfg *config.Config, logger *ops.Logger) *Session {
	if logger == nil {
		logger = ops.NewLogger(&cfg.Logging)
	}
	apiClient := api.New(cfg.API.BaseURL, cfg.API.Token, time.Duration(cfg.API.TimeoutMs)*time.Millisecond, nil)
	agg := live.NewAggregator(cfg.Live.PendingCap)
	manager := push.NewManager(&cfg.Push, agg, logger)
	cache := feed.NewCache(apiClient, cfg.Feeds.PageSize, logger)
	mutations := optimistic.NewCoordinator(apiClient, cache, apiClient.HasToken, logger)

	s := &Session{
		cfg:            cfg,
		logger:         logger.WithComponent("session"),
		apiClient:      apiClient,
		agg:            agg,
		manager:        manager,
		cache:          cache,
		mutations:      mutations,
		debounced:      debounce.New(refetchDebounce),
		pendingRefetch: make(map[string]models.FeedIdentity),
	}
	mutations.SetInvalidateHook(s.scheduleRefetch)
	return s
}

// SignedIn reports whether mutations are available.
func (s *Session) SignedIn() bool {
	return s.apiClient.HasToken()
}

// Connect starts the push channel. Idempotent.
func (s *Session) Connect() {
	s.manager.Connect()
}

// Disconnect tears down the push channel and clears live state.
func (s *Session) Disconnect() {
	s.manager.Disconnect()
}

// ConnectionState returns the push channel state.
func (s *Session) ConnectionState() push.State {
	return s.manager.State()
}

// NotifyVisible forwards a visibility transition to the push manager.
func (s *Session) NotifyVisible() {
	s.manager.NotifyVisible()
}

// NotifyOnline forwards a network-online transition to the push manager.
func (s *Session) NotifyOnline() {
	s.manager.NotifyOnline()
}

// FetchNext fetches the next page of a feed.
func (s *Session) FetchNext(ctx context.Context, id models.FeedIdentity) error {
	return s.cache.FetchNext(ctx, id)
}

// Items returns the flattened cached posts of a feed.
func (s *Session) Items(id models.FeedIdentity) []models.Post {
	return s.cache.Items(id)
}

// HasMore reports whether a feed has more pages to fetch.
func (s *Session) HasMore(id models.FeedIdentity) bool {
	return s.cache.HasMore(id)
}

// Loading reports whether a page fetch is in flight for a feed.
func (s *Session) Loading(id models.FeedIdentity) bool {
	return s.cache.Loading(id)
}

// Err returns the last fetch error for a feed.
func (s *Session) Err(id models.FeedIdentity) error {
	return s.cache.Err(id)
}

// Invalidate marks a feed for refetch and schedules the refetch.
func (s *Session) Invalidate(id models.FeedIdentity) {
	s.cache.Invalidate(id)
	s.scheduleRefetch([]models.FeedIdentity{id})
}

// CountersFor reconciles the display counters for a post from its cached
// snapshot, the latest pushed delta, and active optimistic adjustments.
func (s *Session) CountersFor(post models.Post) models.EngagementCounts {
	var delta *models.EngagementCounts
	if d, ok := s.agg.DeltaFor(post.ID); ok {
		delta = &d
	}
	return reconcile.Counts(post.Counts, delta, s.mutations.Adjustment(post.ID))
}

// PendingCount returns the number of buffered live posts.
func (s *Session) PendingCount() int {
	return s.agg.Pending()
}

// RevealPending drains the live buffer for display and marks the feed for
// refetch so the revealed posts are folded into server truth.
func (s *Session) RevealPending(id models.FeedIdentity) []models.Post {
	drained := s.agg.Drain()
	if len(drained) > 0 {
		s.Invalidate(id)
	}
	return drained
}

// IsOnline reports whether an agent is currently marked online.
func (s *Session) IsOnline(handle string) bool {
	return s.agg.IsOnline(handle)
}

// Trending returns the latest trending tags.
func (s *Session) Trending() []models.TrendingTag {
	return s.agg.Trending()
}

// ToggleLike likes or unlikes a post optimistically.
func (s *Session) ToggleLike(ctx context.Context, postID string) error {
	return s.mutations.ToggleLike(ctx, postID)
}

// ToggleBookmark bookmarks or unbookmarks a post optimistically.
func (s *Session) ToggleBookmark(ctx context.Context, postID string) error {
	return s.mutations.ToggleBookmark(ctx, postID)
}

// Repost reposts a post optimistically.
func (s *Session) Repost(ctx context.Context, postID string) error {
	return s.mutations.Repost(ctx, postID)
}

// ToggleFollow follows or unfollows an agent optimistically.
func (s *Session) ToggleFollow(ctx context.Context, handle string, following bool) error {
	return s.mutations.ToggleFollow(ctx, handle, following)
}

// FollowShown resolves the follow state to display for an agent,
// preferring an active optimistic override.
func (s *Session) FollowShown(agent models.Agent) bool {
	if following, active := s.mutations.FollowOverride(agent.Handle); active {
		return following
	}
	return agent.Viewer.Following
}

// Agent fetches an agent profile.
func (s *Session) Agent(ctx context.Context, handle string) (models.Agent, error) {
	return s.apiClient.GetAgent(ctx, handle)
}

// scheduleRefetch queues identities and debounces the actual refetch so a
// burst of settling mutations produces one round of page fetches.
func (s *Session) scheduleRefetch(ids []models.FeedIdentity) {
	s.mu.Lock()
	for _, id := range ids {
		s.pendingRefetch[id.Key()] = id
	}
	s.mu.Unlock()

	s.debounced(s.flushRefetch)
}

// flushRefetch refetches every queued identity once.
func (s *Session) flushRefetch() {
	s.mu.Lock()
	pending := s.pendingRefetch
	s.pendingRefetch = make(map[string]models.FeedIdentity)
	s.mu.Unlock()

	timeout := time.Duration(s.cfg.API.TimeoutMs) * time.Millisecond
	for _, id := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		// Errors are recorded on the feed state and logged by the cache;
		// stale pages remain visible until a later fetch succeeds.
		_ = s.cache.FetchNext(ctx, id)
		cancel()
	}
}
