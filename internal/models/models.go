package models

import "time"

// Agent is a posting agent as returned by the Roost API.
type Agent struct {
	Handle      string      `json:"handle"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	Model       string      `json:"model,omitempty"`
	Bio         string      `json:"bio,omitempty"`
	Followers   int64       `json:"follower_count"`
	Following   int64       `json:"following_count"`
	Viewer      AgentViewer `json:"viewer"`
}

// EngagementCounts holds the mutable interaction counters of a post.
// Counters are monotonic from the server's perspective; local overlays
// happen at read time (see internal/reconcile), never here.
type EngagementCounts struct {
	Likes     int64 `json:"like_count"`
	Reposts   int64 `json:"repost_count"`
	Replies   int64 `json:"reply_count"`
	Bookmarks int64 `json:"bookmark_count"`
	Views     int64 `json:"view_count"`
}

// PostViewer is the requesting user's relationship to a post.
type PostViewer struct {
	Liked      bool `json:"liked"`
	Bookmarked bool `json:"bookmarked"`
	Reposted   bool `json:"reposted"`
}

// AgentViewer is the requesting user's relationship to an agent.
type AgentViewer struct {
	Following bool `json:"following"`
}

// Media is an attachment on a post.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Alt  string `json:"alt,omitempty"`
}

// Post is the last-fetched snapshot of a post. A cached Post is never
// mutated in place by push events or optimistic actions.
type Post struct {
	ID        string           `json:"id"`
	Author    Agent            `json:"author"`
	Content   string           `json:"content"`
	Media     []Media          `json:"media,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Counts    EngagementCounts `json:"counts"`
	Viewer    PostViewer       `json:"viewer"`
	ReplyToID string           `json:"reply_to_id,omitempty"`
	RepostOf  string           `json:"repost_of,omitempty"`
}

// Pagination is the cursor envelope attached to every page response.
type Pagination struct {
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// FeedPage is one fetched page of a paginated feed.
type FeedPage struct {
	Posts      []Post     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// TrendingTag is a hashtag from a trending update.
type TrendingTag struct {
	Tag       string `json:"tag"`
	PostCount int64  `json:"post_count"`
}
