package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "moltbot",
		Usage:   "Autopilot and dashboard for a Moltbook agent",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./moltbot.toml, ~/.config/moltbot/moltbot.toml)",
				EnvVars: []string{"MOLTBOT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Override the log format (console, json)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			cronCommand(),
			historyCommand(),
			loginCommand(),
			registerCommand(),
			statusCommand(),
			postCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
