package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
)

var (
	// ErrFetchInFlight is returned when a page fetch is requested for an
	// identity that already has one in flight. Page N+1 must not be
	// issued before page N's cursor is known.
	ErrFetchInFlight = errors.New("page fetch already in flight")

	// ErrNoMorePages is returned once the server reported has_more=false
	// for an identity. Terminal until the next Invalidate.
	ErrNoMorePages = errors.New("no more pages")

	// ErrSuperseded is returned when a response arrives for a fetch that
	// an Invalidate made obsolete. The response is discarded.
	ErrSuperseded = errors.New("fetch superseded by invalidation")
)

// Fetcher issues a single page request. *api.Client implements it.
type Fetcher interface {
	FetchFeedPage(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error)
}

// feedState is the cached page sequence of one identity.
type feedState struct {
	pages      []models.FeedPage
	nextCursor string
	started    bool // at least one page fetched this generation
	hasMore    bool
	fetching   bool
	refresh    bool // next successful fetch replaces pages
	gen        uint64
	lastErr    error
}

// Cache holds cursor-paginated pages per feed identity. Identities are
// independent: they never share cursors, errors, or in-flight state.
//
// Fetches are tagged with the identity's generation; Invalidate bumps the
// generation so a slow response from before the invalidation is discarded
// instead of overwriting fresher pages.
type Cache struct {
	fetcher  Fetcher
	pageSize int
	logger   *ops.Logger

	mu    sync.Mutex
	feeds map[string]*feedState
}

// NewCache creates a feed cache.
func NewCache(fetcher Fetcher, pageSize int, logger *ops.Logger) *Cache {
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = ops.Default()
	}
	return &Cache{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   logger.WithComponent("feed"),
		feeds:    make(map[string]*feedState),
	}
}

// state returns the feedState for an identity, creating it if needed.
// Caller must hold c.mu.
func (c *Cache) state(id models.FeedIdentity) *feedState {
	key := id.Key()
	fs, ok := c.feeds[key]
	if !ok {
		fs = &feedState{hasMore: true}
		c.feeds[key] = fs
	}
	return fs
}

// FetchNext fetches the next page for an identity and appends it. The
// first call (and the first call after Invalidate) starts from the
// beginning of the stream.
func (c *Cache) FetchNext(ctx context.Context, id models.FeedIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	fs := c.state(id)
	if fs.fetching {
		c.mu.Unlock()
		return ErrFetchInFlight
	}
	if fs.started && !fs.refresh && !fs.hasMore {
		c.mu.Unlock()
		return ErrNoMorePages
	}
	cursor := ""
	if fs.started && !fs.refresh {
		cursor = fs.nextCursor
	}
	fs.fetching = true
	gen := fs.gen
	c.mu.Unlock()

	start := time.Now()
	page, err := c.fetcher.FetchFeedPage(ctx, id, cursor, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	fs = c.state(id)
	fs.fetching = false

	if err != nil {
		// Previously cached pages stay intact; retry is a fresh
		// FetchNext from the last known cursor.
		if gen == fs.gen {
			fs.lastErr = err
		}
		c.logger.LogPageFetch(id.Key(), 0, false, time.Since(start), err)
		return fmt.Errorf("failed to fetch page for %s: %w", id.Key(), err)
	}

	if gen != fs.gen {
		c.logger.LogPageFetch(id.Key(), len(page.Posts), page.Pagination.HasMore, time.Since(start), ErrSuperseded)
		return ErrSuperseded
	}

	if fs.refresh {
		fs.pages = []models.FeedPage{page}
		fs.refresh = false
	} else {
		fs.pages = append(fs.pages, page)
	}
	fs.started = true
	fs.hasMore = page.Pagination.HasMore
	if page.Pagination.NextCursor != nil {
		fs.nextCursor = *page.Pagination.NextCursor
	} else {
		fs.nextCursor = ""
	}
	fs.lastErr = nil

	c.logger.LogPageFetch(id.Key(), len(page.Posts), fs.hasMore, time.Since(start), nil)
	return nil
}

// Invalidate marks an identity for refetch. Cached pages remain visible
// until the next successful fetch replaces them (stale-while-revalidate),
// and any response still in flight for the old generation is discarded.
func (c *Cache) Invalidate(id models.FeedIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[id.Key()]
	if !ok {
		return
	}
	fs.gen++
	fs.refresh = true
	fs.hasMore = true
	fs.nextCursor = ""
	fs.lastErr = nil
}

// InvalidateContaining invalidates every identity whose cached pages
// contain the given post. Used after a mutation settles so the next read
// re-derives truth from a fresh fetch.
func (c *Cache) InvalidateContaining(postID string) []models.FeedIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()

	var invalidated []models.FeedIdentity
	for key, fs := range c.feeds {
		if !containsPost(fs.pages, postID) {
			continue
		}
		fs.gen++
		fs.refresh = true
		fs.hasMore = true
		fs.nextCursor = ""
		fs.lastErr = nil
		if id, err := models.ParseFeedIdentity(key); err == nil {
			invalidated = append(invalidated, id)
		}
	}
	return invalidated
}

func containsPost(pages []models.FeedPage, postID string) bool {
	for _, page := range pages {
		for _, post := range page.Posts {
			if post.ID == postID {
				return true
			}
		}
	}
	return false
}

// Items returns the flattened post list for an identity: pages
// concatenated in fetch order. Duplicate ids across pages are kept; the
// server may legitimately serve the same post on two pages under
// concurrent writes.
func (c *Cache) Items(id models.FeedIdentity) []models.Post {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[id.Key()]
	if !ok {
		return nil
	}
	var items []models.Post
	for _, page := range fs.pages {
		items = append(items, page.Posts...)
	}
	return items
}

// Post returns the cached snapshot of a post, searching all identities.
func (c *Cache) Post(postID string) (models.Post, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, fs := range c.feeds {
		for _, page := range fs.pages {
			for _, post := range page.Posts {
				if post.ID == postID {
					return post, true
				}
			}
		}
	}
	return models.Post{}, false
}

// HasMore reports whether another page can be fetched for an identity.
func (c *Cache) HasMore(id models.FeedIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[id.Key()]
	if !ok {
		return true
	}
	return !fs.started || fs.refresh || fs.hasMore
}

// Loading reports whether a fetch is in flight for an identity.
func (c *Cache) Loading(id models.FeedIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[id.Key()]
	return ok && fs.fetching
}

// Err returns the last fetch error for an identity, cleared by the next
// successful fetch or Invalidate.
func (c *Cache) Err(id models.FeedIdentity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[id.Key()]
	if !ok {
		return nil
	}
	return fs.lastErr
}
