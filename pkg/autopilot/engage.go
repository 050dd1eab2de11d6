package autopilot

import (
	"context"
	"fmt"

	"github.com/cpunion/moltbot/pkg/agent"
	"github.com/cpunion/moltbot/pkg/types"
)

// engager runs single engagement cycles.
type engager struct {
	social  Social
	writer  Writer
	journal *Journal
	rng     *lockedRand
	cfg     Config
}

// cycle fetches a feed, picks a target and comments on it. live is checked
// before every step; once it reports false the cycle stops quietly and
// returns errStale. An empty feed is not an error.
func (e *engager) cycle(ctx context.Context, live func() bool) error {
	if !live() {
		return errStale
	}
	e.journal.Add(types.SeverityInfo, "Analyzing feed trends...")

	sort := engagementSorts[e.rng.Intn(len(engagementSorts))]
	posts, err := e.social.GlobalFeed(ctx, sort, e.cfg.FeedLimit)
	if err != nil {
		return fmt.Errorf("fetch %s feed: %w", sort, err)
	}
	if !live() {
		return errStale
	}
	if len(posts) == 0 {
		e.journal.Add(types.SeverityInfo, "No active threads found.")
		return nil
	}

	target := posts[e.rng.Intn(len(posts))]
	e.journal.Add(types.SeverityAction, fmt.Sprintf("Selected target: \"%s...\"", truncateRunes(target.Title, 30)))

	comments, err := e.social.Comments(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("fetch comments: %w", err)
	}
	if !live() {
		return errStale
	}
	thread := agent.ContextFromComments(comments, e.cfg.ContextComments, false, " | ")

	reply := e.writer.GenerateReply(ctx, target.Title, target.Content, thread)
	if !live() {
		return errStale
	}
	e.journal.Add(types.SeverityInfo, fmt.Sprintf("Generated reply: \"%s\"", reply))

	if _, err := e.social.CreateComment(ctx, target.ID, reply, ""); err != nil {
		return fmt.Errorf("submit comment: %w", err)
	}
	if !live() {
		return errStale
	}
	e.journal.Add(types.SeveritySuccess, fmt.Sprintf("Comment published: \"%s\"", reply))
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
