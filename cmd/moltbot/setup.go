package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cpunion/moltbot/pkg/agent"
	"github.com/cpunion/moltbot/pkg/config"
	"github.com/cpunion/moltbot/pkg/credentials"
	"github.com/cpunion/moltbot/pkg/llm"
	"github.com/cpunion/moltbot/pkg/moltbook"
)

// app bundles what every command needs.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	creds *credentials.Store
}

func setup(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	path := cfg.Moltbook.CredentialsFile
	if path == "" {
		path = credentials.DefaultPath()
	}
	return &app{cfg: cfg, log: logger, creds: credentials.NewStore(path)}, nil
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// client builds the Moltbook client. The configured key wins over the one
// saved by login or register.
func (a *app) client() *moltbook.Client {
	mc := a.cfg.ClientConfig()
	mc.Logger = a.log
	if mc.APIKey == "" {
		if saved, err := a.creds.Load(); err == nil {
			mc.APIKey = saved.APIKey
		}
	}
	return moltbook.New(mc)
}

// requireKey fails when the client has no credential at all.
func requireKey(client *moltbook.Client) error {
	if client.APIKey() == "" {
		return fmt.Errorf("no Moltbook API key: set MOLTBOOK_API_KEY or run `moltbot login`")
	}
	return nil
}

// brain builds the text generator. Without a usable LLM the brain still
// works and answers with its fallbacks.
func (a *app) brain(ctx context.Context) *agent.Brain {
	var provider agent.LLMProvider
	gemini, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
		APIKey:  a.cfg.LLM.APIKey,
		Model:   a.cfg.LLM.Model,
		BaseURL: a.cfg.LLM.BaseURL,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("LLM unavailable, replies will use fallbacks")
	} else {
		provider = gemini
		a.log.Debug().Str("model", gemini.Model()).Msg("LLM ready")
	}
	return agent.NewBrain(provider, a.cfg.Persona, a.log)
}
