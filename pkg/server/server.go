// Package server exposes the dashboard JSON API: session handling, feed
// browsing, composing, the autopilot switch and a request debug console.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/cpunion/moltbot/pkg/autopilot"
	"github.com/cpunion/moltbot/pkg/credentials"
	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

// Composer is the text generation used by the compose and reply-draft
// endpoints.
type Composer interface {
	GenerateReply(ctx context.Context, title, body, context string) string
	GeneratePost(ctx context.Context, topic, tone string) (types.Draft, error)
	GenerateResearchPost(ctx context.Context) types.Draft
}

// Options wires a Server.
type Options struct {
	Client      *moltbook.Client
	Composer    Composer
	Autopilot   *autopilot.Controller
	Credentials *credentials.Store // optional
	AgentName   string             // shown while the API refuses to describe an unclaimed agent
	ClaimPoll   time.Duration
	TraceSize   int
	Logger      zerolog.Logger
}

// Server is the dashboard back-end.
type Server struct {
	echo     *echo.Echo
	client   *moltbook.Client
	composer Composer
	pilot    *autopilot.Controller
	creds    *credentials.Store
	traces   *traceRing
	log      zerolog.Logger

	agentName string
	claimPoll time.Duration

	mu         sync.Mutex
	base       context.Context
	agent      *types.Agent
	stopWatch  context.CancelFunc
	watchGroup sync.WaitGroup
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		client:    opts.Client,
		composer:  opts.Composer,
		pilot:     opts.Autopilot,
		creds:     opts.Credentials,
		traces:    newTraceRing(opts.TraceSize),
		log:       opts.Logger.With().Str("component", "server").Logger(),
		agentName: opts.AgentName,
		claimPoll: opts.ClaimPoll,
		base:      context.Background(),
	}
	if s.claimPoll <= 0 {
		s.claimPoll = 5 * time.Second
	}
	s.client.SetTracer(s.traces.add)

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := s.echo.Group("/api")

	api.GET("/session", s.getSession)
	api.POST("/session", s.login)
	api.DELETE("/session", s.logout)
	api.POST("/register", s.register)
	api.GET("/claim", s.getClaim)

	api.GET("/me", s.getMe)
	api.PATCH("/me", s.updateMe)
	api.GET("/agents/:name", s.getAgent)
	api.POST("/agents/:name/follow", s.follow)
	api.DELETE("/agents/:name/follow", s.unfollow)

	api.GET("/feed", s.getFeed)
	api.POST("/posts", s.createPost)
	api.GET("/posts/:id", s.getPost)
	api.POST("/posts/:id/comments", s.createComment)
	api.POST("/posts/:id/reply-draft", s.replyDraft)
	api.POST("/posts/:id/upvote", s.upvotePost)
	api.POST("/posts/:id/downvote", s.downvotePost)
	api.POST("/comments/:id/upvote", s.upvoteComment)

	api.GET("/submolts", s.listSubmolts)
	api.POST("/submolts", s.createSubmolt)
	api.GET("/submolts/:name", s.getSubmolt)
	api.POST("/submolts/:name/subscribe", s.subscribe)
	api.DELETE("/submolts/:name/subscribe", s.unsubscribe)
	api.GET("/search", s.search)

	api.POST("/compose", s.compose)

	api.GET("/autopilot", s.getAutopilot)
	api.POST("/autopilot/start", s.startAutopilot)
	api.POST("/autopilot/stop", s.stopAutopilot)
	api.GET("/autopilot/events", s.autopilotEvents)

	api.GET("/debug", s.getDebug)
	api.DELETE("/debug", s.clearDebug)
	api.POST("/raw", s.raw)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx ends, then shuts down gracefully and stops
// the autopilot. Autopilot runs started over HTTP live as long as ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		s.shutdownBackground()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	s.shutdownBackground()
	return err
}

func (s *Server) shutdownBackground() {
	s.cancelClaimWatch()
	s.watchGroup.Wait()
	if err := s.pilot.Close(); err != nil {
		s.log.Warn().Err(err).Msg("autopilot close")
	}
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// handleError renders every failure as {"error": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	}
	body := map[string]any{"error": msg}
	var apiErr *moltbook.APIError
	if errors.As(err, &apiErr) {
		body["upstream_status"] = apiErr.Status
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	if err := c.JSON(status, body); err != nil {
		s.log.Warn().Err(err).Msg("write error response")
	}
}

// upstream maps Moltbook client errors onto HTTP statuses.
func upstream(err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, moltbook.ErrNoAPIKey), errors.Is(err, moltbook.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, moltbook.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, moltbook.ErrConflict), errors.Is(err, moltbook.ErrAlreadyFollowing):
		status = http.StatusConflict
	case errors.Is(err, moltbook.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, moltbook.ErrMethodNotAllowed):
		status = http.StatusMethodNotAllowed
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

func parseLimit(value string, fallback, min, max int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	if parsed < min {
		return min
	}
	if parsed > max {
		return max
	}
	return parsed
}
