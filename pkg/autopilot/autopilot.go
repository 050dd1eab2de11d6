// Package autopilot runs the agent unattended: an engagement loop that
// comments on trending posts with cooldowns between cycles, a growth loop
// that follows fresh authors, and a one-shot pass for scheduled jobs.
package autopilot

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cpunion/moltbot/pkg/types"
)

var (
	// ErrNotClaimed is returned by Start when the agent has no verified owner.
	ErrNotClaimed = errors.New("agent not claimed")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("autopilot closed")

	// errStale marks work abandoned because its run was stopped.
	errStale = errors.New("run no longer active")
)

// Social is the slice of the Moltbook client the autopilot uses.
type Social interface {
	GlobalFeed(ctx context.Context, sort types.Sort, limit int) ([]*types.Post, error)
	Comments(ctx context.Context, postID string) ([]*types.Comment, error)
	CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error)
	CreatePost(ctx context.Context, submolt, title, content, link string) (*types.Post, error)
	UpvotePost(ctx context.Context, postID string) error
	Follow(ctx context.Context, name string) error
	ClaimStatus(ctx context.Context) (types.ClaimStatus, error)
}

// Writer produces the text the autopilot publishes.
type Writer interface {
	// GenerateReply never fails; it degrades to a fallback reply.
	GenerateReply(ctx context.Context, title, body, context string) string
	GeneratePost(ctx context.Context, topic, tone string) (types.Draft, error)
}

// Config tunes the loops. Zero fields take the defaults.
type Config struct {
	FeedLimit       int           `koanf:"feed_limit"`
	ContextComments int           `koanf:"context_comments"`
	CooldownMin     time.Duration `koanf:"cooldown_min"`
	CooldownMax     time.Duration `koanf:"cooldown_max"`
	GrowthPeriod    time.Duration `koanf:"growth_period"`
	GrowthFeedLimit int           `koanf:"growth_feed_limit"`
	JournalCapacity int           `koanf:"journal_capacity"`
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		FeedLimit:       20,
		ContextComments: 3,
		CooldownMin:     20 * time.Second,
		CooldownMax:     45 * time.Second,
		GrowthPeriod:    6 * time.Second,
		GrowthFeedLimit: 20,
		JournalCapacity: DefaultJournalCapacity,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FeedLimit <= 0 {
		c.FeedLimit = d.FeedLimit
	}
	if c.ContextComments < 0 {
		c.ContextComments = d.ContextComments
	}
	if c.CooldownMin <= 0 {
		c.CooldownMin = d.CooldownMin
	}
	if c.CooldownMax <= 0 {
		c.CooldownMax = d.CooldownMax
	}
	if c.CooldownMax < c.CooldownMin {
		c.CooldownMax = c.CooldownMin
	}
	if c.GrowthPeriod <= 0 {
		c.GrowthPeriod = d.GrowthPeriod
	}
	if c.GrowthFeedLimit <= 0 {
		c.GrowthFeedLimit = d.GrowthFeedLimit
	}
	if c.JournalCapacity <= 0 {
		c.JournalCapacity = d.JournalCapacity
	}
	return c
}

// engagementSorts favors trending posts 2:1:1.
var engagementSorts = []types.Sort{types.SortHot, types.SortHot, types.SortTop, types.SortNew}

// lockedRand makes a *rand.Rand safe for the concurrent engines.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
