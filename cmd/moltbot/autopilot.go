package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cpunion/moltbot/pkg/archive"
	"github.com/cpunion/moltbot/pkg/autopilot"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the autopilot headless until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait-claim",
				Usage: "Wait for the owner to claim the agent instead of exiting",
				Value: true,
			},
		},
		Action: runAutopilot,
	}
}

func runAutopilot(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	client := a.client()
	if err := requireKey(client); err != nil {
		return err
	}
	pilot, err := a.newPilot(client, a.brain(ctx))
	if err != nil {
		return err
	}
	defer func() {
		if err := pilot.Close(); err != nil {
			a.log.Warn().Err(err).Msg("autopilot close")
		}
	}()

	claimed, err := pilot.RefreshClaim(ctx)
	if err != nil {
		return err
	}
	if !claimed {
		if !c.Bool("wait-claim") {
			return errors.New("agent not claimed yet, share the claim link with the owner first")
		}
		a.log.Info().Msg("waiting for the owner to claim the agent")
		if err := pilot.WatchClaim(ctx, a.cfg.Server.ClaimPoll); err != nil {
			return nil
		}
	}

	// Mirror the journal so headless runs show the same feed the dashboard does.
	unsubscribe := pilot.Subscribe(func(ev autopilot.Event) {
		if ev.Kind != autopilot.EntryAdded {
			return
		}
		e := ev.Entry
		fmt.Printf("%s [%s] %s\n", e.Time.Format(time.TimeOnly), e.Severity, e.Message)
	})
	defer unsubscribe()

	halted := make(chan error, 1)
	offHalt := pilot.OnHalt(func(err error) {
		select {
		case halted <- err:
		default:
		}
	})
	defer offHalt()

	if err := pilot.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		pilot.Stop()
		return nil
	case err := <-halted:
		return fmt.Errorf("autopilot stopped: %w", err)
	}
}

func cronCommand() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "Do one unattended pass (follow, then post or comment) and exit",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed (0 uses the clock)",
			},
		},
		Action: runCron,
	}
}

func runCron(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	client := a.client()
	if err := requireKey(client); err != nil {
		return err
	}
	seed := c.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a.log.Info().Msg("starting cron job")
	res, err := autopilot.RunOnce(ctx, client, a.brain(ctx), a.cfg.Cron, rand.New(rand.NewSource(seed)), a.log)
	if err != nil {
		return fmt.Errorf("cron job failed: %w", err)
	}

	if res.Followed != "" {
		fmt.Printf("Followed @%s\n", res.Followed)
	}
	switch {
	case res.Posted != nil:
		fmt.Printf("Posted: %s\n", res.Posted.Title)
	case res.CommentOn != "":
		fmt.Printf("Commented on %s: %s\n", res.CommentOn, res.Reply)
	default:
		fmt.Println("Nothing to do")
	}
	return nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print the newest entries of the journal archive (log.journal_dir)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "n", Value: 50, Usage: "Number of entries"},
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	if a.cfg.Log.JournalDir == "" {
		return errors.New("log.journal_dir is not configured")
	}
	entries, err := archive.Recent(a.cfg.Log.JournalDir, c.Int("n"))
	if err != nil {
		return fmt.Errorf("read journal archive: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s [%s] %s\n", e.Time.Format(time.DateTime), e.Severity, e.Message)
	}
	return nil
}
