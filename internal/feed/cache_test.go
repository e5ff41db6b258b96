package feed

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
)

// fetchFunc adapts a closure to the Fetcher interface.
type fetchFunc func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error)

func (f fetchFunc) FetchFeedPage(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
	return f(ctx, id, cursor, limit)
}

func quietLogger() *ops.Logger {
	return ops.NewLoggerWithWriter(&config.Logging{Level: "error", Format: "text"}, io.Discard)
}

func makePage(ids []string, next string, hasMore bool) models.FeedPage {
	page := models.FeedPage{Pagination: models.Pagination{HasMore: hasMore}}
	if next != "" {
		page.Pagination.NextCursor = &next
	}
	for _, id := range ids {
		page.Posts = append(page.Posts, models.Post{ID: id})
	}
	return page
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Condition not met within deadline")
}

func TestFetchNextSequentialCursors(t *testing.T) {
	id := models.ForYouFeed()
	var cursors []string
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			return makePage([]string{"p1", "p2"}, "c1", true), nil
		case "c1":
			return makePage([]string{"p3"}, "", false), nil
		}
		return models.FeedPage{}, errors.New("unexpected cursor")
	})
	cache := NewCache(fetcher, 20, quietLogger())

	if err := cache.FetchNext(context.Background(), id); err != nil {
		t.Fatalf("First FetchNext() error = %v", err)
	}
	if err := cache.FetchNext(context.Background(), id); err != nil {
		t.Fatalf("Second FetchNext() error = %v", err)
	}

	if len(cursors) != 2 || cursors[0] != "" || cursors[1] != "c1" {
		t.Errorf("Expected cursors [\"\" c1], got %v", cursors)
	}

	items := cache.Items(id)
	if len(items) != 3 || items[0].ID != "p1" || items[2].ID != "p3" {
		t.Errorf("Unexpected flattened items: %+v", items)
	}

	if cache.HasMore(id) {
		t.Error("Expected HasMore false after terminal page")
	}
	if err := cache.FetchNext(context.Background(), id); !errors.Is(err, ErrNoMorePages) {
		t.Errorf("Expected ErrNoMorePages, got %v", err)
	}
}

func TestFetchNextRejectsConcurrent(t *testing.T) {
	id := models.ForYouFeed()
	gate := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		<-gate
		return makePage([]string{"p1"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	done := make(chan error, 1)
	go func() { done <- cache.FetchNext(context.Background(), id) }()

	waitFor(t, func() bool { return cache.Loading(id) })

	if err := cache.FetchNext(context.Background(), id); !errors.Is(err, ErrFetchInFlight) {
		t.Errorf("Expected ErrFetchInFlight, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Blocked FetchNext() error = %v", err)
	}
	if cache.Loading(id) {
		t.Error("Expected Loading false after fetch completed")
	}
}

func TestFetchFailureKeepsPages(t *testing.T) {
	id := models.ForYouFeed()
	fail := false
	var lastCursor string
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		lastCursor = cursor
		if fail {
			return models.FeedPage{}, errors.New("server unavailable")
		}
		if cursor == "" {
			return makePage([]string{"p1"}, "c1", true), nil
		}
		return makePage([]string{"p2"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	if err := cache.FetchNext(context.Background(), id); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}

	fail = true
	if err := cache.FetchNext(context.Background(), id); err == nil {
		t.Fatal("Expected fetch error")
	}
	if len(cache.Items(id)) != 1 {
		t.Errorf("Expected cached page kept on failure, got %d items", len(cache.Items(id)))
	}
	if cache.Err(id) == nil {
		t.Error("Expected last error recorded")
	}
	if !cache.HasMore(id) {
		t.Error("Expected HasMore true after a failed fetch")
	}

	// Retry resumes from the last known cursor.
	fail = false
	if err := cache.FetchNext(context.Background(), id); err != nil {
		t.Fatalf("Retry FetchNext() error = %v", err)
	}
	if lastCursor != "c1" {
		t.Errorf("Expected retry from cursor c1, got %q", lastCursor)
	}
	if cache.Err(id) != nil {
		t.Errorf("Expected error cleared after success, got %v", cache.Err(id))
	}
	if len(cache.Items(id)) != 2 {
		t.Errorf("Expected 2 items after retry, got %d", len(cache.Items(id)))
	}
}

func TestInvalidateRefetchesFromStart(t *testing.T) {
	id := models.FollowingFeed()
	var cursors []string
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		cursors = append(cursors, cursor)
		if len(cursors) <= 2 {
			next := "c1"
			if cursor == "c1" {
				return makePage([]string{"old2"}, "", false), nil
			}
			return makePage([]string{"old1"}, next, true), nil
		}
		return makePage([]string{"fresh1"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	ctx := context.Background()
	if err := cache.FetchNext(ctx, id); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}
	if err := cache.FetchNext(ctx, id); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}

	cache.Invalidate(id)

	// Stale pages stay visible until the refetch lands.
	if len(cache.Items(id)) != 2 {
		t.Errorf("Expected stale items visible after invalidate, got %d", len(cache.Items(id)))
	}
	if !cache.HasMore(id) {
		t.Error("Expected HasMore true after invalidate")
	}

	if err := cache.FetchNext(ctx, id); err != nil {
		t.Fatalf("Refetch error = %v", err)
	}
	if cursors[2] != "" {
		t.Errorf("Expected refetch from the start, got cursor %q", cursors[2])
	}

	items := cache.Items(id)
	if len(items) != 1 || items[0].ID != "fresh1" {
		t.Errorf("Expected fresh page to replace stale pages, got %+v", items)
	}
}

func TestSupersededResponseDiscarded(t *testing.T) {
	id := models.ForYouFeed()
	gate := make(chan struct{})
	calls := 0
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		calls++
		if calls == 1 {
			<-gate
			return makePage([]string{"stale"}, "", false), nil
		}
		return makePage([]string{"fresh"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	done := make(chan error, 1)
	go func() { done <- cache.FetchNext(context.Background(), id) }()
	waitFor(t, func() bool { return cache.Loading(id) })

	cache.Invalidate(id)
	close(gate)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected ErrSuperseded, got %v", err)
	}
	if len(cache.Items(id)) != 0 {
		t.Errorf("Expected stale response discarded, got %+v", cache.Items(id))
	}

	if err := cache.FetchNext(context.Background(), id); err != nil {
		t.Fatalf("Fresh FetchNext() error = %v", err)
	}
	items := cache.Items(id)
	if len(items) != 1 || items[0].ID != "fresh" {
		t.Errorf("Expected fresh page, got %+v", items)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	gate := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		if id.Kind == models.FeedForYou {
			<-gate
		}
		return makePage([]string{id.Key() + "-p1"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	forYou := models.ForYouFeed()
	following := models.FollowingFeed()

	done := make(chan error, 1)
	go func() { done <- cache.FetchNext(context.Background(), forYou) }()
	waitFor(t, func() bool { return cache.Loading(forYou) })

	// A fetch in flight on one identity does not block another.
	if err := cache.FetchNext(context.Background(), following); err != nil {
		t.Fatalf("FetchNext(following) error = %v", err)
	}
	if len(cache.Items(following)) != 1 {
		t.Errorf("Expected following page cached, got %d items", len(cache.Items(following)))
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("FetchNext(for-you) error = %v", err)
	}
}

func TestInvalidateContaining(t *testing.T) {
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		if id.Kind == models.FeedForYou {
			return makePage([]string{"p1", "p2"}, "", false), nil
		}
		return makePage([]string{"p3"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	ctx := context.Background()
	if err := cache.FetchNext(ctx, models.ForYouFeed()); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}
	if err := cache.FetchNext(ctx, models.FollowingFeed()); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}

	invalidated := cache.InvalidateContaining("p2")
	if len(invalidated) != 1 || invalidated[0].Kind != models.FeedForYou {
		t.Errorf("Expected only for-you invalidated, got %+v", invalidated)
	}
	if !cache.HasMore(models.ForYouFeed()) {
		t.Error("Expected for-you marked for refetch")
	}

	if got := cache.InvalidateContaining("missing"); len(got) != 0 {
		t.Errorf("Expected no invalidations for unknown post, got %+v", got)
	}
}

func TestPostLookup(t *testing.T) {
	fetcher := fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		return makePage([]string{"p1"}, "", false), nil
	})
	cache := NewCache(fetcher, 20, quietLogger())

	if _, ok := cache.Post("p1"); ok {
		t.Error("Expected no post before any fetch")
	}
	if err := cache.FetchNext(context.Background(), models.ForYouFeed()); err != nil {
		t.Fatalf("FetchNext() error = %v", err)
	}
	post, ok := cache.Post("p1")
	if !ok || post.ID != "p1" {
		t.Errorf("Expected cached p1, got %+v ok=%v", post, ok)
	}
}

func TestFetchNextValidatesIdentity(t *testing.T) {
	cache := NewCache(fetchFunc(func(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
		return models.FeedPage{}, nil
	}), 20, quietLogger())

	if err := cache.FetchNext(context.Background(), models.FeedIdentity{Kind: models.FeedAgent}); err == nil {
		t.Error("Expected validation error for agent feed without handle")
	}
}
