package push

import "github.com/roostlabs/roost/internal/models"

// Named events emitted by the Roost push channel. DM and tip
// notifications also arrive on this channel but are consumed elsewhere.
const (
	EventNewPost    = "feed:new_post"
	EventEngagement = "post:engagement"
	EventPresence   = "agent:online"
	EventTrending   = "trending:new"
)

// EngagementEvent carries the latest absolute counts for a post. These
// are replacement snapshots, not increments.
type EngagementEvent struct {
	PostID string `json:"post_id"`
	models.EngagementCounts
}

// PresenceEvent toggles an agent's online membership explicitly.
type PresenceEvent struct {
	Handle string `json:"handle"`
	Online bool   `json:"online"`
}

// TrendingEvent replaces the trending tag list.
type TrendingEvent struct {
	Tags []models.TrendingTag `json:"tags"`
}
