package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/cpunion/moltbot/pkg/credentials"
	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Check an API key and remember it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "api-key",
				Usage:    "Moltbook API key",
				EnvVars:  []string{"MOLTBOOK_API_KEY"},
				Required: true,
			},
		},
		Action: runLogin,
	}
}

func runLogin(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	client := a.client()
	client.SetAPIKey(c.String("api-key"))

	name := a.cfg.Persona.Name
	profile, err := client.Me(c.Context)
	switch {
	case err == nil:
		name = profile.Agent.Name
		fmt.Printf("Logged in as %s (karma %d)\n", name, profile.Agent.Karma)
	case moltbook.IsNotClaimed(err):
		fmt.Println("Key accepted, but the agent is not claimed yet.")
	default:
		return fmt.Errorf("login failed: %w", err)
	}

	if err := a.creds.Save(credentials.Credentials{
		APIKey:           client.APIKey(),
		AgentName:        name,
		VerificationCode: a.cfg.Moltbook.VerificationCode,
	}); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Printf("Saved to %s\n", a.creds.Path())
	return nil
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a new agent",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "description",
				Usage: "Agent description",
			},
		},
		Action: runRegister,
	}
}

func runRegister(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return fmt.Errorf("agent name is required")
	}
	a, err := setup(c)
	if err != nil {
		return err
	}
	reg, err := a.client().Register(c.Context, name, c.String("description"))
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}

	if err := a.creds.Save(credentials.Credentials{
		APIKey:           reg.Agent.APIKey,
		AgentName:        reg.Agent.Name,
		VerificationCode: reg.Agent.VerificationCode,
		ClaimURL:         reg.Agent.ClaimURL,
	}); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	fmt.Printf("Registered %s\n", reg.Agent.Name)
	fmt.Printf("API key:           %s\n", reg.Agent.APIKey)
	fmt.Printf("Verification code: %s\n", reg.Agent.VerificationCode)
	fmt.Printf("Claim URL:         %s\n", reg.Agent.ClaimURL)
	if reg.Important != "" {
		fmt.Println(reg.Important)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the agent profile and claim status",
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	client := a.client()
	if err := requireKey(client); err != nil {
		return err
	}

	status, err := client.ClaimStatus(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Claim status: %s\n", status.Status)
	if !status.Claimed() {
		if saved, err := a.creds.Load(); err == nil && saved.ClaimURL != "" {
			fmt.Printf("Claim URL:    %s\n", saved.ClaimURL)
		}
		return nil
	}

	profile, err := client.Me(c.Context)
	if err != nil {
		return err
	}
	ag := profile.Agent
	fmt.Printf("Agent:        %s\n", ag.Name)
	fmt.Printf("Karma:        %d\n", ag.Karma)
	fmt.Printf("Followers:    %d (following %d)\n", ag.FollowerCount, ag.FollowingCount)
	if ag.Owner != nil && ag.Owner.XHandle != "" {
		fmt.Printf("Owner:        @%s\n", ag.Owner.XHandle)
	}
	return nil
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Publish a post, written by hand or generated",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "submolt", Value: "general", Usage: "Target submolt"},
			&cli.StringFlag{Name: "title", Usage: "Post title"},
			&cli.StringFlag{Name: "content", Usage: "Post body"},
			&cli.StringFlag{Name: "url", Usage: "Link, for link posts"},
			&cli.StringFlag{Name: "topic", Usage: "Generate the post about this topic"},
			&cli.StringFlag{Name: "tone", Usage: "Tone for generated posts"},
			&cli.BoolFlag{Name: "research", Usage: "Generate a researched post"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the draft without publishing"},
		},
		Action: runPost,
	}
}

func runPost(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	client := a.client()

	draft := types.Draft{Title: c.String("title"), Content: c.String("content")}
	switch {
	case c.Bool("research"):
		draft = a.brain(c.Context).GenerateResearchPost(c.Context)
	case c.String("topic") != "":
		draft, err = a.brain(c.Context).GeneratePost(c.Context, c.String("topic"), c.String("tone"))
		if err != nil {
			return fmt.Errorf("generate post: %w", err)
		}
	}
	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("a title, --topic or --research is required")
	}

	fmt.Printf("# %s\n\n%s\n", draft.Title, draft.Content)
	if c.Bool("dry-run") {
		return nil
	}
	if err := requireKey(client); err != nil {
		return err
	}
	post, err := client.CreatePost(c.Context, c.String("submolt"), draft.Title, draft.Content, c.String("url"))
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	fmt.Printf("\nPublished %s to m/%s\n", post.ID, c.String("submolt"))
	return nil
}
