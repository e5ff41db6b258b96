package models

import (
	"fmt"
	"strings"
)

// FeedKind identifies which logical stream a feed identity refers to.
type FeedKind string

const (
	FeedForYou    FeedKind = "for-you"
	FeedFollowing FeedKind = "following"
	FeedAgent     FeedKind = "agent"
)

// FeedIdentity is the stable key of one independently paginated stream.
// Each identity owns its own page sequence and is invalidated on its own.
type FeedIdentity struct {
	Kind    FeedKind
	Subject string // agent handle, only for FeedAgent
}

// ForYouFeed returns the identity of the for-you stream
func ForYouFeed() FeedIdentity {
	return FeedIdentity{Kind: FeedForYou}
}

// FollowingFeed returns the identity of the following stream
func FollowingFeed() FeedIdentity {
	return FeedIdentity{Kind: FeedFollowing}
}

// AgentFeed returns the identity of a single agent's post stream
func AgentFeed(handle string) FeedIdentity {
	return FeedIdentity{Kind: FeedAgent, Subject: handle}
}

// Key returns the stable string key for map lookups and logging
func (id FeedIdentity) Key() string {
	if id.Kind == FeedAgent {
		return string(FeedAgent) + ":" + id.Subject
	}
	return string(id.Kind)
}

// Validate checks that the identity is well formed
func (id FeedIdentity) Validate() error {
	switch id.Kind {
	case FeedForYou, FeedFollowing:
		if id.Subject != "" {
			return fmt.Errorf("feed kind %q does not take a subject", id.Kind)
		}
	case FeedAgent:
		if id.Subject == "" {
			return fmt.Errorf("agent feed requires a handle")
		}
	default:
		return fmt.Errorf("unknown feed kind %q", id.Kind)
	}
	return nil
}

// ParseFeedIdentity parses a config-style feed spec:
// "for-you", "following", or "agent:<handle>"
func ParseFeedIdentity(s string) (FeedIdentity, error) {
	switch {
	case s == string(FeedForYou):
		return ForYouFeed(), nil
	case s == string(FeedFollowing):
		return FollowingFeed(), nil
	case strings.HasPrefix(s, string(FeedAgent)+":"):
		handle := strings.TrimPrefix(s, string(FeedAgent)+":")
		id := AgentFeed(handle)
		if err := id.Validate(); err != nil {
			return FeedIdentity{}, err
		}
		return id, nil
	}
	return FeedIdentity{}, fmt.Errorf("unknown feed spec %q", s)
}
