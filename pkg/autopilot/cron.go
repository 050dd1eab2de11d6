package autopilot

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cpunion/moltbot/pkg/agent"
	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

// CronConfig tunes a one-shot pass.
type CronConfig struct {
	GrowthChance    float64  `koanf:"growth_chance"`
	PostChance      float64  `koanf:"post_chance"`
	FeedLimit       int      `koanf:"feed_limit"`
	GrowthFeedLimit int      `koanf:"growth_feed_limit"`
	ContextComments int      `koanf:"context_comments"`
	Submolt         string   `koanf:"submolt"`
	Topics          []string `koanf:"topics"`
}

// DefaultCronConfig returns the scheduled job's tuning.
func DefaultCronConfig() CronConfig {
	return CronConfig{
		GrowthChance:    0.3,
		PostChance:      0.1,
		FeedLimit:       15,
		GrowthFeedLimit: 10,
		ContextComments: 5,
		Submolt:         "general",
		Topics:          agent.CronTopics,
	}
}

// CronResult summarizes what a pass did.
type CronResult struct {
	Followed  string
	Posted    *types.Draft
	CommentOn string
	Reply     string
}

// RunOnce performs one unattended pass: maybe follow someone new, then either
// write a post or comment on (and upvote) a trending one. Only failed writes
// are returned as errors.
func RunOnce(ctx context.Context, social Social, writer Writer, cfg CronConfig, r *rand.Rand, logger zerolog.Logger) (*CronResult, error) {
	rng := newLockedRand(r)
	res := &CronResult{}

	g, gctx := errgroup.WithContext(ctx)
	if rng.Float64() < cfg.GrowthChance {
		g.Go(func() error {
			res.Followed = cronFollow(gctx, social, cfg, rng, logger)
			return nil
		})
	}

	roll := rng.Float64()
	g.Go(func() error {
		if roll < cfg.PostChance {
			return cronPost(gctx, social, writer, cfg, rng, logger, res)
		}
		return cronEngage(gctx, social, writer, cfg, rng, logger, res)
	})

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func cronFollow(ctx context.Context, social Social, cfg CronConfig, rng *lockedRand, logger zerolog.Logger) string {
	posts, err := social.GlobalFeed(ctx, types.SortNew, cfg.GrowthFeedLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("growth feed unavailable")
		return ""
	}
	if len(posts) == 0 {
		return ""
	}
	name := posts[rng.Intn(len(posts))].Author.Name
	logger.Info().Str("agent", name).Msg("growth: following")
	if err := social.Follow(ctx, name); err != nil {
		if !moltbook.IsAlreadyFollowing(err) {
			logger.Warn().Err(err).Str("agent", name).Msg("follow failed")
		}
		return ""
	}
	return name
}

func cronPost(ctx context.Context, social Social, writer Writer, cfg CronConfig, rng *lockedRand, logger zerolog.Logger, res *CronResult) error {
	topic := "Simulation theory"
	if len(cfg.Topics) > 0 {
		topic = cfg.Topics[rng.Intn(len(cfg.Topics))]
	}
	logger.Info().Str("topic", topic).Msg("mode: creating post")

	draft, err := writer.GeneratePost(ctx, topic, "")
	if err != nil {
		logger.Warn().Err(err).Msg("post generation failed, skipping")
		return nil
	}
	if _, err := social.CreatePost(ctx, cfg.Submolt, draft.Title, draft.Content, ""); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	res.Posted = &draft
	logger.Info().Str("title", draft.Title).Msg("posted")
	return nil
}

func cronEngage(ctx context.Context, social Social, writer Writer, cfg CronConfig, rng *lockedRand, logger zerolog.Logger, res *CronResult) error {
	logger.Info().Msg("mode: engagement")
	posts, err := social.GlobalFeed(ctx, types.SortHot, cfg.FeedLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("feed unavailable")
		return nil
	}
	if len(posts) == 0 {
		logger.Info().Msg("no posts found")
		return nil
	}

	target := posts[rng.Intn(len(posts))]
	logger.Info().Str("post", target.ID).Str("title", target.Title).Str("author", target.Author.Name).Msg("target")

	comments, err := social.Comments(ctx, target.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("comments unavailable, replying without context")
	}
	thread := agent.ContextFromComments(comments, cfg.ContextComments, true, "\n")

	reply := writer.GenerateReply(ctx, target.Title, target.Content, thread)
	if _, err := social.CreateComment(ctx, target.ID, reply, ""); err != nil {
		return fmt.Errorf("comment on %s: %w", target.ID, err)
	}
	res.CommentOn, res.Reply = target.ID, reply
	logger.Info().Str("reply", reply).Msg("replied")

	if err := social.UpvotePost(ctx, target.ID); err != nil {
		return fmt.Errorf("upvote %s: %w", target.ID, err)
	}
	logger.Info().Msg("upvoted post")
	return nil
}
