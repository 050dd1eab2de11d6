package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cpunion/moltbot/pkg/credentials"
	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

type sessionView struct {
	LoggedIn bool         `json:"logged_in"`
	Claimed  bool         `json:"claimed"`
	Agent    *types.Agent `json:"agent,omitempty"`
}

func (s *Server) session() sessionView {
	s.mu.Lock()
	agent := s.agent
	s.mu.Unlock()
	return sessionView{
		LoggedIn: s.client.APIKey() != "" && agent != nil,
		Claimed:  s.pilot.Claimed(),
		Agent:    agent,
	}
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session())
}

type loginRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "api_key is required")
	}
	if err := s.Login(c.Request().Context(), key); err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, s.session())
}

// Login validates key against the API and makes it the active session. An
// agent that is registered but not yet claimed is accepted, since the API
// refuses to describe it until its owner verifies.
func (s *Server) Login(ctx context.Context, key string) error {
	previous := s.client.APIKey()
	s.client.SetAPIKey(key)

	agent := &types.Agent{Name: s.agentName}
	profile, err := s.client.Me(ctx)
	switch {
	case err == nil:
		agent = &profile.Agent
	case moltbook.IsNotClaimed(err):
		s.log.Info().Msg("agent exists but is not claimed yet")
	default:
		s.client.SetAPIKey(previous)
		return err
	}

	s.pilot.Stop()
	s.pilot.SetClaimed(agent.IsClaimed)
	if agent.IsClaimed {
		s.cancelClaimWatch()
	} else {
		s.watchClaim()
	}

	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()

	if s.creds != nil {
		if err := s.creds.Save(credentials.Credentials{APIKey: key, AgentName: agent.Name}); err != nil {
			s.log.Warn().Err(err).Msg("could not save credentials")
		}
	}
	s.log.Info().Str("agent", agent.Name).Bool("claimed", agent.IsClaimed).Msg("logged in")
	return nil
}

// Restore resumes a session at startup. A key already set on the client,
// such as a configured one, wins over saved credentials. With neither,
// Restore does nothing.
func (s *Server) Restore(ctx context.Context) error {
	key := s.client.APIKey()
	if key == "" && s.creds != nil {
		creds, err := s.creds.Load()
		switch {
		case errors.Is(err, credentials.ErrNoCredentials):
		case err != nil:
			return err
		default:
			key = creds.APIKey
		}
	}
	if key == "" {
		return nil
	}
	return s.Login(ctx, key)
}

func (s *Server) logout(c echo.Context) error {
	s.Logout()
	return c.NoContent(http.StatusNoContent)
}

// Logout stops the autopilot and forgets the session.
func (s *Server) Logout() {
	s.pilot.Stop()
	s.pilot.SetClaimed(false)
	s.cancelClaimWatch()
	s.client.SetAPIKey("")

	s.mu.Lock()
	s.agent = nil
	s.mu.Unlock()

	if s.creds != nil {
		if err := s.creds.Clear(); err != nil {
			s.log.Warn().Err(err).Msg("could not clear credentials")
		}
	}
}

// watchClaim polls the claim status in the background until the owner
// verifies the agent or the session ends.
func (s *Server) watchClaim() {
	s.cancelClaimWatch()

	ctx, cancel := context.WithCancel(s.baseContext())
	s.mu.Lock()
	s.stopWatch = cancel
	s.mu.Unlock()

	s.watchGroup.Add(1)
	go func() {
		defer s.watchGroup.Done()
		if err := s.pilot.WatchClaim(ctx, s.claimPoll); err != nil {
			return
		}
		s.mu.Lock()
		if s.agent != nil {
			s.agent.IsClaimed = true
		}
		s.mu.Unlock()
		s.log.Info().Msg("agent claimed, autopilot available")
	}()
}

func (s *Server) cancelClaimWatch() {
	s.mu.Lock()
	cancel := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type registerRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	reg, err := s.client.Register(c.Request().Context(), strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusCreated, reg)
}

func (s *Server) getClaim(c echo.Context) error {
	claimed, err := s.pilot.RefreshClaim(c.Request().Context())
	if err != nil {
		return upstream(err)
	}
	if claimed {
		s.cancelClaimWatch()
		s.mu.Lock()
		if s.agent != nil {
			s.agent.IsClaimed = true
		}
		s.mu.Unlock()
	}
	return c.JSON(http.StatusOK, map[string]bool{"claimed": claimed})
}

func (s *Server) getMe(c echo.Context) error {
	profile, err := s.client.Me(c.Request().Context())
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, profile)
}

type updateMeRequest struct {
	Description string `json:"description"`
}

func (s *Server) updateMe(c echo.Context) error {
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.client.UpdateProfile(c.Request().Context(), req.Description); err != nil {
		return upstream(err)
	}
	profile, err := s.client.Me(c.Request().Context())
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) getAgent(c echo.Context) error {
	profile, err := s.client.Profile(c.Request().Context(), c.Param("name"))
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) follow(c echo.Context) error {
	err := s.client.Follow(c.Request().Context(), c.Param("name"))
	if err != nil && !moltbook.IsAlreadyFollowing(err) {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"following": true})
}

func (s *Server) unfollow(c echo.Context) error {
	if err := s.client.Unfollow(c.Request().Context(), c.Param("name")); err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"following": false})
}
