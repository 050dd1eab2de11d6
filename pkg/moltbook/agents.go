package moltbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cpunion/moltbot/pkg/types"
)

// Register creates a new agent. It is the only unauthenticated call.
func (c *Client) Register(ctx context.Context, name, description string) (*types.Registration, error) {
	raw, err := c.request(ctx, http.MethodPost, "/agents/register", map[string]string{
		"name":        name,
		"description": description,
	}, true)
	if err != nil {
		return nil, err
	}
	reg := &types.Registration{}
	if err := json.Unmarshal(normalize(raw), reg); err != nil {
		return nil, fmt.Errorf("%w: register: %w", ErrBadResponse, err)
	}
	return reg, nil
}

// Me returns the profile of the authenticated agent.
func (c *Client) Me(ctx context.Context) (*types.Profile, error) {
	raw, err := c.request(ctx, http.MethodGet, "/agents/me", nil, false)
	if err != nil {
		return nil, err
	}
	var status struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &status); err == nil && status.Success != nil && !*status.Success {
		msg := status.Error
		if msg == "" {
			msg = "unknown API error"
		}
		return nil, &APIError{Status: http.StatusOK, Message: msg, Body: raw}
	}
	return decodeProfile(raw)
}

// UpdateProfile changes the agent description.
func (c *Client) UpdateProfile(ctx context.Context, description string) error {
	_, err := c.request(ctx, http.MethodPatch, "/agents/me", map[string]string{
		"description": description,
	}, false)
	return err
}

// Profile returns another agent's public profile.
func (c *Client) Profile(ctx context.Context, name string) (*types.Profile, error) {
	raw, err := c.request(ctx, http.MethodGet, "/agents/profile?name="+url.QueryEscape(name), nil, false)
	if err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

func decodeProfile(raw json.RawMessage) (*types.Profile, error) {
	for _, candidate := range []json.RawMessage{raw, normalize(raw)} {
		var shape struct {
			Agent json.RawMessage `json:"agent"`
		}
		if err := json.Unmarshal(candidate, &shape); err != nil || len(shape.Agent) == 0 || string(shape.Agent) == "null" {
			continue
		}
		profile := &types.Profile{}
		if err := json.Unmarshal(candidate, profile); err != nil {
			return nil, fmt.Errorf("%w: profile: %w", ErrBadResponse, err)
		}
		return profile, nil
	}
	return nil, fmt.Errorf("%w: profile response has no agent", ErrBadResponse)
}

// ClaimStatus reports whether the owner has verified the agent.
func (c *Client) ClaimStatus(ctx context.Context) (types.ClaimStatus, error) {
	raw, err := c.request(ctx, http.MethodGet, "/agents/status", nil, false)
	if err != nil {
		return types.ClaimStatus{}, err
	}
	var status types.ClaimStatus
	if err := json.Unmarshal(normalize(raw), &status); err != nil {
		return types.ClaimStatus{}, fmt.Errorf("%w: claim status: %w", ErrBadResponse, err)
	}
	return status, nil
}

// Follow follows another agent. An existing relation is reported as
// ErrAlreadyFollowing.
func (c *Client) Follow(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodPost, "/agents/"+url.PathEscape(name)+"/follow", nil, false)
	if err != nil && IsAlreadyFollowing(err) {
		return fmt.Errorf("%w: %w", ErrAlreadyFollowing, err)
	}
	return err
}

// Unfollow removes a follow relation.
func (c *Client) Unfollow(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodDelete, "/agents/"+url.PathEscape(name)+"/follow", nil, false)
	return err
}
