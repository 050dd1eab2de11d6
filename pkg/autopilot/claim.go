package autopilot

import (
	"context"
	"fmt"
	"time"
)

// SetClaimed records the owner verification status used to gate Start.
func (c *Controller) SetClaimed(claimed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = claimed
}

// Claimed returns the cached claim status.
func (c *Controller) Claimed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed
}

// RefreshClaim asks the server for the claim status and caches it.
func (c *Controller) RefreshClaim(ctx context.Context) (bool, error) {
	status, err := c.social.ClaimStatus(ctx)
	if err != nil {
		return c.Claimed(), fmt.Errorf("claim status: %w", err)
	}
	claimed := status.Claimed()
	c.SetClaimed(claimed)
	return claimed, nil
}

// WatchClaim polls the claim status every interval until the agent is
// claimed or ctx ends. Poll failures are logged and retried.
func (c *Controller) WatchClaim(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	for {
		claimed, err := c.RefreshClaim(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("claim poll failed")
		}
		if claimed {
			c.log.Info().Msg("agent claimed")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(every):
		}
	}
}
