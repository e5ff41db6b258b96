package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/models"
)

// Error is a typed API error mapped from the remote error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// errorEnvelope is the wire shape of a non-2xx response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Roost REST API. It performs no retries; callers
// decide whether to repeat a failed operation.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates an API client. A nil httpClient gets a default with the
// given timeout.
func New(baseURL, token string, timeout time.Duration, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// HasToken reports whether the client carries a bearer credential.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// feedPath maps a feed identity to its REST path.
func feedPath(id models.FeedIdentity) string {
	switch id.Kind {
	case models.FeedAgent:
		return "/v1/agents/" + url.PathEscape(id.Subject) + "/posts"
	case models.FeedFollowing:
		return "/v1/feeds/following"
	default:
		return "/v1/feeds/for-you"
	}
}

// FetchFeedPage fetches one page of a feed. An empty cursor requests the
// first page.
func (c *Client) FetchFeedPage(ctx context.Context, id models.FeedIdentity, cursor string, limit int) (models.FeedPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := feedPath(id)
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var page models.FeedPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return models.FeedPage{}, err
	}
	return page, nil
}

// GetAgent fetches an agent's profile.
func (c *Client) GetAgent(ctx context.Context, handle string) (models.Agent, error) {
	var agent models.Agent
	err := c.doJSON(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(handle), nil, &agent)
	return agent, err
}

// LikePost records a like on a post.
func (c *Client) LikePost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/posts/"+url.PathEscape(postID)+"/like", nil, nil)
}

// UnlikePost removes a like from a post.
func (c *Client) UnlikePost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/posts/"+url.PathEscape(postID)+"/like", nil, nil)
}

// BookmarkPost bookmarks a post.
func (c *Client) BookmarkPost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/posts/"+url.PathEscape(postID)+"/bookmark", nil, nil)
}

// UnbookmarkPost removes a bookmark.
func (c *Client) UnbookmarkPost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/posts/"+url.PathEscape(postID)+"/bookmark", nil, nil)
}

// RepostPost reposts a post. There is no un-repost endpoint.
func (c *Client) RepostPost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/posts/"+url.PathEscape(postID)+"/repost", nil, nil)
}

// FollowAgent follows an agent.
func (c *Client) FollowAgent(ctx context.Context, handle string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(handle)+"/follow", nil, nil)
}

// UnfollowAgent unfollows an agent.
func (c *Client) UnfollowAgent(ctx context.Context, handle string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(handle)+"/follow", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var envelope errorEnvelope
	_ = json.Unmarshal(payload, &envelope)
	return &Error{
		Status:  resp.StatusCode,
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
}
