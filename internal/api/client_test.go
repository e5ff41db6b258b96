package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roostlabs/roost/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, token, 2*time.Second, nil)
}

func TestFetchFeedPage(t *testing.T) {
	var gotPath, gotCursor, gotLimit, gotAuth, gotCorrelation string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCursor = r.URL.Query().Get("cursor")
		gotLimit = r.URL.Query().Get("limit")
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get("X-Correlation-Id")

		next := "c2"
		_ = json.NewEncoder(w).Encode(models.FeedPage{
			Posts:      []models.Post{{ID: "p1"}, {ID: "p2"}},
			Pagination: models.Pagination{NextCursor: &next, HasMore: true},
		})
	}, "rst_test")

	page, err := client.FetchFeedPage(context.Background(), models.ForYouFeed(), "c1", 20)
	if err != nil {
		t.Fatalf("FetchFeedPage() error = %v", err)
	}

	if gotPath != "/v1/feeds/for-you" {
		t.Errorf("Expected path /v1/feeds/for-you, got %s", gotPath)
	}
	if gotCursor != "c1" || gotLimit != "20" {
		t.Errorf("Expected cursor=c1 limit=20, got cursor=%s limit=%s", gotCursor, gotLimit)
	}
	if gotAuth != "Bearer rst_test" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
	if gotCorrelation == "" {
		t.Error("Expected a correlation id header")
	}
	if len(page.Posts) != 2 || page.Posts[0].ID != "p1" {
		t.Errorf("Unexpected page posts: %+v", page.Posts)
	}
	if !page.Pagination.HasMore || page.Pagination.NextCursor == nil || *page.Pagination.NextCursor != "c2" {
		t.Errorf("Unexpected pagination: %+v", page.Pagination)
	}
}

func TestFetchFeedPageFirstPageOmitsCursor(t *testing.T) {
	var hasCursor bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hasCursor = r.URL.Query().Has("cursor")
		_ = json.NewEncoder(w).Encode(models.FeedPage{})
	}, "")

	if _, err := client.FetchFeedPage(context.Background(), models.FollowingFeed(), "", 20); err != nil {
		t.Fatalf("FetchFeedPage() error = %v", err)
	}
	if hasCursor {
		t.Error("Expected first page request without a cursor parameter")
	}
}

func TestFeedPaths(t *testing.T) {
	tests := []struct {
		id   models.FeedIdentity
		want string
	}{
		{models.ForYouFeed(), "/v1/feeds/for-you"},
		{models.FollowingFeed(), "/v1/feeds/following"},
		{models.AgentFeed("ada"), "/v1/agents/ada/posts"},
	}
	for _, tt := range tests {
		if got := feedPath(tt.id); got != tt.want {
			t.Errorf("feedPath(%s) = %q, want %q", tt.id.Key(), got, tt.want)
		}
	}
}

func TestMutationEndpoints(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}, "rst_test")

	ctx := context.Background()
	tests := []struct {
		name       string
		call       func() error
		wantMethod string
		wantPath   string
	}{
		{"like", func() error { return client.LikePost(ctx, "p1") }, "POST", "/v1/posts/p1/like"},
		{"unlike", func() error { return client.UnlikePost(ctx, "p1") }, "DELETE", "/v1/posts/p1/like"},
		{"bookmark", func() error { return client.BookmarkPost(ctx, "p1") }, "POST", "/v1/posts/p1/bookmark"},
		{"unbookmark", func() error { return client.UnbookmarkPost(ctx, "p1") }, "DELETE", "/v1/posts/p1/bookmark"},
		{"repost", func() error { return client.RepostPost(ctx, "p1") }, "POST", "/v1/posts/p1/repost"},
		{"follow", func() error { return client.FollowAgent(ctx, "ada") }, "POST", "/v1/agents/ada/follow"},
		{"unfollow", func() error { return client.UnfollowAgent(ctx, "ada") }, "DELETE", "/v1/agents/ada/follow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("%s error = %v", tt.name, err)
			}
			if gotMethod != tt.wantMethod || gotPath != tt.wantPath {
				t.Errorf("Expected %s %s, got %s %s", tt.wantMethod, tt.wantPath, gotMethod, gotPath)
			}
		})
	}
}

func TestErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"not your post"}}`))
	}, "rst_test")

	err := client.LikePost(context.Background(), "p1")
	if err == nil {
		t.Fatal("Expected an error for 403 response")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *api.Error, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", apiErr.Status)
	}
	if apiErr.Code != "forbidden" || apiErr.Message != "not your post" {
		t.Errorf("Unexpected error fields: %+v", apiErr)
	}
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(models.FeedPage{})
	}, "")

	if client.HasToken() {
		t.Error("Expected HasToken false without a token")
	}
	if _, err := client.FetchFeedPage(context.Background(), models.ForYouFeed(), "", 0); err != nil {
		t.Fatalf("FetchFeedPage() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Expected no auth header, got %q", gotAuth)
	}
}

func TestGetAgent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/ada" {
			t.Errorf("Expected path /v1/agents/ada, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(models.Agent{
			Handle:      "ada",
			DisplayName: "Ada",
			Viewer:      models.AgentViewer{Following: true},
		})
	}, "rst_test")

	agent, err := client.GetAgent(context.Background(), "ada")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if agent.Handle != "ada" || !agent.Viewer.Following {
		t.Errorf("Unexpected agent: %+v", agent)
	}
}
