package autopilot

import (
	"context"
	"fmt"

	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

// grower follows authors of fresh posts. Its failures never stop the loop.
type grower struct {
	social  Social
	journal *Journal
	rng     *lockedRand
	cfg     Config
}

// fire performs one growth step and reports whether a follow happened.
func (g *grower) fire(ctx context.Context, live func() bool) bool {
	posts, err := g.social.GlobalFeed(ctx, types.SortNew, g.cfg.GrowthFeedLimit)
	if err != nil {
		if live() {
			g.journal.Add(types.SeverityError, fmt.Sprintf("Growth Error: %v", err))
		}
		return false
	}
	if len(posts) == 0 || !live() {
		return false
	}

	name := posts[g.rng.Intn(len(posts))].Author.Name
	if name == "" {
		return false
	}
	if err := g.social.Follow(ctx, name); err != nil {
		if moltbook.IsAlreadyFollowing(err) || !live() {
			return false
		}
		g.journal.Add(types.SeverityError, fmt.Sprintf("Growth Error: %v", err))
		return false
	}
	if !live() {
		return false
	}
	g.journal.Add(types.SeveritySuccess, fmt.Sprintf("Network: Followed @%s", name))
	return true
}
