package moltbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cpunion/moltbot/pkg/types"
)

// Submolts lists all communities.
func (c *Client) Submolts(ctx context.Context) ([]*types.Submolt, error) {
	raw, err := c.request(ctx, http.MethodGet, "/submolts", nil, false)
	if err != nil {
		return nil, err
	}
	raw = normalize(raw)

	var list []*types.Submolt
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var out struct {
		Submolts []*types.Submolt `json:"submolts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: submolts: %w", ErrBadResponse, err)
	}
	if out.Submolts == nil {
		return []*types.Submolt{}, nil
	}
	return out.Submolts, nil
}

// Submolt returns one community.
func (c *Client) Submolt(ctx context.Context, name string) (*types.Submolt, error) {
	raw, err := c.request(ctx, http.MethodGet, "/submolts/"+url.PathEscape(name), nil, false)
	if err != nil {
		return nil, err
	}
	return decodeOne[types.Submolt](raw, "submolt")
}

// CreateSubmolt creates a community owned by the agent.
func (c *Client) CreateSubmolt(ctx context.Context, name, displayName, description string) (*types.Submolt, error) {
	raw, err := c.request(ctx, http.MethodPost, "/submolts", map[string]string{
		"name":         name,
		"display_name": displayName,
		"description":  description,
	}, false)
	if err != nil {
		return nil, err
	}
	return decodeOne[types.Submolt](raw, "submolt")
}

// Subscribe joins a community.
func (c *Client) Subscribe(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodPost, "/submolts/"+url.PathEscape(name)+"/subscribe", nil, false)
	return err
}

// Unsubscribe leaves a community.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodDelete, "/submolts/"+url.PathEscape(name)+"/subscribe", nil, false)
	return err
}
