package moltbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cpunion/moltbot/pkg/types"
)

// Feed returns the personalized feed of the authenticated agent.
func (c *Client) Feed(ctx context.Context, sort types.Sort, limit int) ([]*types.Post, error) {
	return c.posts(ctx, "/feed", sort, limit)
}

// GlobalFeed returns posts from all submolts.
func (c *Client) GlobalFeed(ctx context.Context, sort types.Sort, limit int) ([]*types.Post, error) {
	return c.posts(ctx, "/posts", sort, limit)
}

func (c *Client) posts(ctx context.Context, path string, sort types.Sort, limit int) ([]*types.Post, error) {
	if sort == "" {
		sort = types.SortHot
	}
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("sort", string(sort))
	q.Set("limit", strconv.Itoa(limit))
	raw, err := c.request(ctx, http.MethodGet, path+"?"+q.Encode(), nil, false)
	if err != nil {
		return nil, err
	}
	var out struct {
		Posts []*types.Post `json:"posts"`
	}
	if err := json.Unmarshal(normalize(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: feed: %w", ErrBadResponse, err)
	}
	if out.Posts == nil {
		return []*types.Post{}, nil
	}
	return out.Posts, nil
}

// Post returns a post with its comments.
func (c *Client) Post(ctx context.Context, postID string) (*types.Post, []*types.Comment, error) {
	raw, err := c.request(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, false)
	if err != nil {
		return nil, nil, err
	}
	var out struct {
		Post     *types.Post      `json:"post"`
		Comments []*types.Comment `json:"comments"`
	}
	if err := json.Unmarshal(normalize(raw), &out); err != nil {
		return nil, nil, fmt.Errorf("%w: post: %w", ErrBadResponse, err)
	}
	if out.Post == nil {
		return nil, nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if out.Comments == nil {
		out.Comments = []*types.Comment{}
	}
	return out.Post, out.Comments, nil
}

// Comments returns the comments of a post.
func (c *Client) Comments(ctx context.Context, postID string) ([]*types.Comment, error) {
	_, comments, err := c.Post(ctx, postID)
	return comments, err
}

// CreatePost publishes a text post, or a link post when link is set.
func (c *Client) CreatePost(ctx context.Context, submolt, title, content, link string) (*types.Post, error) {
	body := map[string]string{
		"submolt": submolt,
		"title":   title,
	}
	if link != "" {
		body["url"] = link
	} else {
		body["content"] = content
	}
	raw, err := c.request(ctx, http.MethodPost, "/posts", body, false)
	if err != nil {
		return nil, err
	}
	return decodeOne[types.Post](raw, "post")
}

// CreateComment adds a comment to a post, optionally as a reply.
func (c *Client) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	raw, err := c.request(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", body, false)
	if err != nil {
		return nil, err
	}
	return decodeOne[types.Comment](raw, "comment")
}

// UpvotePost upvotes a post.
func (c *Client) UpvotePost(ctx context.Context, postID string) error {
	_, err := c.request(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/upvote", nil, false)
	return err
}

// DownvotePost downvotes a post.
func (c *Client) DownvotePost(ctx context.Context, postID string) error {
	_, err := c.request(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/downvote", nil, false)
	return err
}

// UpvoteComment upvotes a comment.
func (c *Client) UpvoteComment(ctx context.Context, commentID string) error {
	_, err := c.request(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/upvote", nil, false)
	return err
}

// Search runs a semantic search.
func (c *Client) Search(ctx context.Context, query string, kind types.SearchType, limit int) ([]types.SearchResult, error) {
	if kind == "" {
		kind = types.SearchAll
	}
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", string(kind))
	q.Set("limit", strconv.Itoa(limit))
	raw, err := c.request(ctx, http.MethodGet, "/search?"+q.Encode(), nil, false)
	if err != nil {
		return nil, err
	}

	var list []types.SearchResult
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	for _, candidate := range []json.RawMessage{raw, normalize(raw)} {
		var out struct {
			Results []types.SearchResult `json:"results"`
		}
		if err := json.Unmarshal(candidate, &out); err == nil && out.Results != nil {
			return out.Results, nil
		}
	}
	return []types.SearchResult{}, nil
}

// decodeOne decodes a created object that may be wrapped as {key: {...}}.
func decodeOne[T any](raw json.RawMessage, key string) (*T, error) {
	raw = normalize(raw)
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadResponse, key, err)
	}
	if inner, ok := wrapped[key]; ok && len(inner) > 0 && string(inner) != "null" {
		raw = inner
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadResponse, key, err)
	}
	return out, nil
}
