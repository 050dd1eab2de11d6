package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cpunion/moltbot/pkg/archive"
	"github.com/cpunion/moltbot/pkg/autopilot"
	"github.com/cpunion/moltbot/pkg/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the dashboard API with the autopilot switch",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
		},
		Action: runServe,
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newPilot builds the controller with the journal mirrored to the configured
// archive directory or JSONL file.
func (a *app) newPilot(social autopilot.Social, writer autopilot.Writer) (*autopilot.Controller, error) {
	opts := []autopilot.Option{
		autopilot.WithLogger(a.log),
		autopilot.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
	switch {
	case a.cfg.Log.JournalDir != "":
		w, err := archive.Open(a.cfg.Log.JournalDir, a.cfg.Log.JournalShardSize)
		if err != nil {
			return nil, fmt.Errorf("open journal archive: %w", err)
		}
		opts = append(opts, autopilot.WithSink(w))
	case a.cfg.Log.JournalFile != "":
		sink, err := autopilot.NewRunFileSink(autopilot.RunFileConfig{
			Path:      a.cfg.Log.JournalFile,
			MaxSizeMB: a.cfg.Log.JournalMaxMB,
			Keep:      a.cfg.Log.JournalKeep,
		})
		if err != nil {
			return nil, fmt.Errorf("open journal file: %w", err)
		}
		opts = append(opts, autopilot.WithSink(sink))
	}
	return autopilot.New(social, writer, a.cfg.Autopilot, opts...), nil
}

func runServe(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	client := a.client()
	brain := a.brain(ctx)
	pilot, err := a.newPilot(client, brain)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Client:      client,
		Composer:    brain,
		Autopilot:   pilot,
		Credentials: a.creds,
		AgentName:   a.cfg.Persona.Name,
		ClaimPoll:   a.cfg.Server.ClaimPoll,
		TraceSize:   a.cfg.Server.TraceSize,
		Logger:      a.log,
	})

	if err := srv.Restore(ctx); err != nil {
		a.log.Warn().Err(err).Msg("stored API key rejected, log in from the dashboard")
	}

	addr := a.cfg.Server.Addr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	return srv.Run(ctx, addr)
}
