package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roostlabs/roost/internal/feed"
	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
	"github.com/roostlabs/roost/internal/reconcile"
)

// ErrAuthRequired is returned when a mutation is attempted without a
// session. No flag is created and no network call is made.
var ErrAuthRequired = errors.New("authentication required")

// Action is the kind of a mutating user action.
type Action string

const (
	ActionLike     Action = "like"
	ActionBookmark Action = "bookmark"
	ActionRepost   Action = "repost"
	ActionFollow   Action = "follow"
)

// API is the mutation surface of the REST client.
type API interface {
	LikePost(ctx context.Context, postID string) error
	UnlikePost(ctx context.Context, postID string) error
	BookmarkPost(ctx context.Context, postID string) error
	UnbookmarkPost(ctx context.Context, postID string) error
	RepostPost(ctx context.Context, postID string) error
	FollowAgent(ctx context.Context, handle string) error
	UnfollowAgent(ctx context.Context, handle string) error
}

// flagKey identifies one optimistic flag: (post, action) or
// (handle, follow).
type flagKey struct {
	target string
	action Action
}

// mutation is the explicit transaction behind a flag: the pre-mutation
// snapshot and the applied increment. The flag exists only while the
// request is in flight; both settle paths remove it.
type mutation struct {
	snapshot models.Post
	delta    int64 // +1 or -1 on the action's counter
}

// Coordinator applies local state changes for user actions before server
// confirmation. It is the sole writer of optimistic flags; the flags are
// pure overlays read at reconcile time, so rolling back a failed
// mutation restores exactly the pre-mutation view regardless of what
// deltas arrived meanwhile.
type Coordinator struct {
	api    API
	cache  *feed.Cache
	authed func() bool
	logger *ops.Logger

	mu    sync.Mutex
	flags map[flagKey]mutation

	// onInvalidate is notified with the feed identities invalidated by a
	// settled mutation so the owner can schedule refetches.
	onInvalidate func([]models.FeedIdentity)
}

// NewCoordinator creates a mutation coordinator. authed gates every
// action; a nil func means never authenticated.
func NewCoordinator(apiClient API, cache *feed.Cache, authed func() bool, logger *ops.Logger) *Coordinator {
	if logger == nil {
		logger = ops.Default()
	}
	return &Coordinator{
		api:    apiClient,
		cache:  cache,
		authed: authed,
		logger: logger.WithComponent("mutations"),
		flags:  make(map[flagKey]mutation),
	}
}

// SetInvalidateHook registers a callback for post-settle invalidations.
func (c *Coordinator) SetInvalidateHook(hook func([]models.FeedIdentity)) {
	c.onInvalidate = hook
}

// begin applies the optimistic flag unless one is already active for the
// key. Returns false when the trigger is suppressed.
func (c *Coordinator) begin(key flagKey, m mutation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, active := c.flags[key]; active {
		// A second identical trigger while the first is in flight must
		// not double-apply.
		return false
	}
	c.flags[key] = m
	return true
}

// settle clears the flag for both success and failure paths. A flag with
// no in-flight request must never exist.
func (c *Coordinator) settle(key flagKey) {
	c.mu.Lock()
	delete(c.flags, key)
	c.mu.Unlock()
}

// ToggleLike likes the post, or unlikes it when the cached snapshot says
// the viewer already likes it.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) error {
	if c.authed == nil || !c.authed() {
		return ErrAuthRequired
	}

	key := flagKey{target: postID, action: ActionLike}
	snapshot, _ := c.cache.Post(postID)
	delta := int64(1)
	if snapshot.Viewer.Liked {
		delta = -1
	}
	if !c.begin(key, mutation{snapshot: snapshot, delta: delta}) {
		return nil
	}

	var err error
	if delta > 0 {
		err = c.api.LikePost(ctx, postID)
	} else {
		err = c.api.UnlikePost(ctx, postID)
	}
	c.settle(key)

	if err != nil {
		c.logger.LogMutation(string(ActionLike), postID, true, err)
		return fmt.Errorf("like mutation failed: %w", err)
	}
	c.invalidatePost(postID)
	c.logger.LogMutation(string(ActionLike), postID, false, nil)
	return nil
}

// ToggleBookmark bookmarks the post, or removes the bookmark when the
// cached snapshot says the viewer already has one.
func (c *Coordinator) ToggleBookmark(ctx context.Context, postID string) error {
	if c.authed == nil || !c.authed() {
		return ErrAuthRequired
	}

	key := flagKey{target: postID, action: ActionBookmark}
	snapshot, _ := c.cache.Post(postID)
	delta := int64(1)
	if snapshot.Viewer.Bookmarked {
		delta = -1
	}
	if !c.begin(key, mutation{snapshot: snapshot, delta: delta}) {
		return nil
	}

	var err error
	if delta > 0 {
		err = c.api.BookmarkPost(ctx, postID)
	} else {
		err = c.api.UnbookmarkPost(ctx, postID)
	}
	c.settle(key)

	if err != nil {
		c.logger.LogMutation(string(ActionBookmark), postID, true, err)
		return fmt.Errorf("bookmark mutation failed: %w", err)
	}
	c.invalidatePost(postID)
	c.logger.LogMutation(string(ActionBookmark), postID, false, nil)
	return nil
}

// Repost reposts the post. Reposting is one-directional: a repeat while
// the flag is active, or once the viewer already reposted, is a no-op.
func (c *Coordinator) Repost(ctx context.Context, postID string) error {
	if c.authed == nil || !c.authed() {
		return ErrAuthRequired
	}

	key := flagKey{target: postID, action: ActionRepost}
	snapshot, _ := c.cache.Post(postID)
	if snapshot.Viewer.Reposted {
		return nil
	}
	if !c.begin(key, mutation{snapshot: snapshot, delta: 1}) {
		return nil
	}

	err := c.api.RepostPost(ctx, postID)
	c.settle(key)

	if err != nil {
		c.logger.LogMutation(string(ActionRepost), postID, true, err)
		return fmt.Errorf("repost mutation failed: %w", err)
	}
	c.invalidatePost(postID)
	c.logger.LogMutation(string(ActionRepost), postID, false, nil)
	return nil
}

// ToggleFollow follows the agent, or unfollows when following reports the
// viewer already follows them.
func (c *Coordinator) ToggleFollow(ctx context.Context, handle string, following bool) error {
	if c.authed == nil || !c.authed() {
		return ErrAuthRequired
	}

	key := flagKey{target: handle, action: ActionFollow}
	delta := int64(1)
	if following {
		delta = -1
	}
	if !c.begin(key, mutation{delta: delta}) {
		return nil
	}

	var err error
	if delta > 0 {
		err = c.api.FollowAgent(ctx, handle)
	} else {
		err = c.api.UnfollowAgent(ctx, handle)
	}
	c.settle(key)

	if err != nil {
		c.logger.LogMutation(string(ActionFollow), handle, true, err)
		return fmt.Errorf("follow mutation failed: %w", err)
	}

	invalidated := []models.FeedIdentity{models.FollowingFeed(), models.AgentFeed(handle)}
	for _, id := range invalidated {
		c.cache.Invalidate(id)
	}
	if c.onInvalidate != nil {
		c.onInvalidate(invalidated)
	}
	c.logger.LogMutation(string(ActionFollow), handle, false, nil)
	return nil
}

// invalidatePost invalidates every feed whose cached pages contain the
// post, superseding the optimistic value with a fresh fetch.
func (c *Coordinator) invalidatePost(postID string) {
	invalidated := c.cache.InvalidateContaining(postID)
	if c.onInvalidate != nil && len(invalidated) > 0 {
		c.onInvalidate(invalidated)
	}
}

// Adjustment returns the sum of active optimistic increments for a post.
func (c *Coordinator) Adjustment(postID string) reconcile.Adjustment {
	c.mu.Lock()
	defer c.mu.Unlock()

	var adj reconcile.Adjustment
	if m, ok := c.flags[flagKey{target: postID, action: ActionLike}]; ok {
		adj.Likes = m.delta
	}
	if m, ok := c.flags[flagKey{target: postID, action: ActionBookmark}]; ok {
		adj.Bookmarks = m.delta
	}
	if m, ok := c.flags[flagKey{target: postID, action: ActionRepost}]; ok {
		adj.Reposts = m.delta
	}
	return adj
}

// FollowOverride reports an active optimistic follow state for an agent.
// When active is true, following is the state currently shown.
func (c *Coordinator) FollowOverride(handle string) (following bool, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.flags[flagKey{target: handle, action: ActionFollow}]
	if !ok {
		return false, false
	}
	return m.delta > 0, true
}

// ActiveFlags returns the number of in-flight optimistic flags.
func (c *Coordinator) ActiveFlags() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flags)
}
