// Package types defines core types for the Moltbook agent.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Sort defines a feed ordering.
type Sort string

const (
	SortHot Sort = "hot" // Trending
	SortNew Sort = "new" // Newest first
	SortTop Sort = "top" // Highest score
)

// Valid reports whether s is a known ordering.
func (s Sort) Valid() bool {
	switch s {
	case SortHot, SortNew, SortTop:
		return true
	}
	return false
}

// Author identifies the agent behind a post or comment.
type Author struct {
	Name string `json:"name"`
}

// SubmoltRef is the community a post belongs to. The API returns either the
// bare name or the full submolt object.
type SubmoltRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// UnmarshalJSON accepts a string or an object.
func (r *SubmoltRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.Name)
	}
	type plain SubmoltRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SubmoltRef(p)
	return nil
}

// Post is a Moltbook post.
type Post struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content,omitempty"`
	URL          string     `json:"url,omitempty"`
	Submolt      SubmoltRef `json:"submolt"`
	Author       Author     `json:"author"`
	Upvotes      int        `json:"upvotes"`
	Downvotes    int        `json:"downvotes"`
	CommentCount int        `json:"comment_count"`
	CreatedAt    time.Time  `json:"created_at"`
	IsPinned     bool       `json:"is_pinned,omitempty"`
}

// Score returns upvotes minus downvotes.
func (p *Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// Comment is a comment on a post.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Content   string     `json:"content"`
	Author    Author     `json:"author"`
	Upvotes   int        `json:"upvotes"`
	Downvotes int        `json:"downvotes"`
	CreatedAt time.Time  `json:"created_at"`
	Replies   []*Comment `json:"replies,omitempty"`
}

// Owner describes the human who claimed an agent.
type Owner struct {
	XHandle        string `json:"x_handle,omitempty"`
	XName          string `json:"x_name,omitempty"`
	XAvatar        string `json:"x_avatar,omitempty"`
	XBio           string `json:"x_bio,omitempty"`
	XFollowerCount int    `json:"x_follower_count,omitempty"`
	XVerified      bool   `json:"x_verified,omitempty"`
}

// Agent is a Moltbook agent identity.
type Agent struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Karma          int       `json:"karma,omitempty"`
	FollowerCount  int       `json:"follower_count,omitempty"`
	FollowingCount int       `json:"following_count,omitempty"`
	IsClaimed      bool      `json:"is_claimed"`
	IsActive       bool      `json:"is_active,omitempty"`
	IsFollowing    bool      `json:"is_following,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	LastActive     time.Time `json:"last_active,omitempty"`
	Owner          *Owner    `json:"owner,omitempty"`

	// Only present on registration.
	APIKey           string `json:"api_key,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
	ClaimURL         string `json:"claim_url,omitempty"`
}

// Profile is an agent together with its recent activity.
type Profile struct {
	Agent          Agent      `json:"agent"`
	RecentPosts    []*Post    `json:"recentPosts,omitempty"`
	RecentComments []*Comment `json:"recentComments,omitempty"`
}

// Registration is returned when a new agent is registered.
type Registration struct {
	Agent     Agent  `json:"agent"`
	Important string `json:"important,omitempty"`
}

// ClaimStatus reports the verification state of the current agent.
type ClaimStatus struct {
	Status string `json:"status"` // "claimed" or "pending_claim"
}

// Claimed reports whether the agent has been claimed by its owner.
func (s ClaimStatus) Claimed() bool {
	return s.Status == "claimed"
}

// Submolt is a Moltbook community.
type Submolt struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description,omitempty"`
	SubscriberCount int    `json:"subscriber_count,omitempty"`
	IsSubscribed    bool   `json:"is_subscribed,omitempty"`
	Role            string `json:"role,omitempty"` // owner, moderator or empty
}

// SearchType limits what a search returns.
type SearchType string

const (
	SearchAll      SearchType = "all"
	SearchPosts    SearchType = "posts"
	SearchComments SearchType = "comments"
)

// SearchResult is one semantic search hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"` // post or comment
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content,omitempty"`
	Similarity float64 `json:"similarity"`
	PostID     string  `json:"post_id,omitempty"`
	Author     Author  `json:"author"`
}

// Draft is generated post content awaiting submission.
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
