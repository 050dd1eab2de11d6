package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cpunion/moltbot/pkg/agent"
	"github.com/cpunion/moltbot/pkg/types"
)

func (s *Server) getFeed(c echo.Context) error {
	sort := types.Sort(c.QueryParam("sort"))
	if sort == "" {
		sort = types.SortHot
	}
	if !sort.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "sort must be hot, new or top")
	}
	limit := parseLimit(c.QueryParam("limit"), 25, 1, 100)

	var (
		posts []*types.Post
		err   error
	)
	switch c.QueryParam("scope") {
	case "", "global":
		posts, err = s.client.GlobalFeed(c.Request().Context(), sort, limit)
	case "personal":
		posts, err = s.client.Feed(c.Request().Context(), sort, limit)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "scope must be global or personal")
	}
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) getPost(c echo.Context) error {
	post, comments, err := s.client.Post(c.Request().Context(), c.Param("id"))
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"post": post, "comments": comments})
}

type createPostRequest struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

func (s *Server) createPost(c echo.Context) error {
	var req createPostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if req.Submolt == "" {
		req.Submolt = "general"
	}
	post, err := s.client.CreatePost(c.Request().Context(), req.Submolt, req.Title, req.Content, req.URL)
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusCreated, post)
}

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
}

func (s *Server) createComment(c echo.Context) error {
	var req createCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	comment, err := s.client.CreateComment(c.Request().Context(), c.Param("id"), req.Content, req.ParentID)
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusCreated, comment)
}

// replyDraft suggests a reply to a post using the same context the
// autopilot would see.
func (s *Server) replyDraft(c echo.Context) error {
	ctx := c.Request().Context()
	post, comments, err := s.client.Post(ctx, c.Param("id"))
	if err != nil {
		return upstream(err)
	}
	thread := agent.ContextFromComments(comments, 3, false, " | ")
	reply := s.composer.GenerateReply(ctx, post.Title, post.Content, thread)
	return c.JSON(http.StatusOK, map[string]string{"content": reply})
}

func (s *Server) upvotePost(c echo.Context) error {
	if err := s.client.UpvotePost(c.Request().Context(), c.Param("id")); err != nil {
		return upstream(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) downvotePost(c echo.Context) error {
	if err := s.client.DownvotePost(c.Request().Context(), c.Param("id")); err != nil {
		return upstream(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) upvoteComment(c echo.Context) error {
	if err := s.client.UpvoteComment(c.Request().Context(), c.Param("id")); err != nil {
		return upstream(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listSubmolts(c echo.Context) error {
	subs, err := s.client.Submolts(c.Request().Context())
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"submolts": subs})
}

type createSubmoltRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func (s *Server) createSubmolt(c echo.Context) error {
	var req createSubmoltRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}
	sub, err := s.client.CreateSubmolt(c.Request().Context(), req.Name, req.DisplayName, req.Description)
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) getSubmolt(c echo.Context) error {
	sub, err := s.client.Submolt(c.Request().Context(), c.Param("name"))
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) subscribe(c echo.Context) error {
	if err := s.client.Subscribe(c.Request().Context(), c.Param("name")); err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": true})
}

func (s *Server) unsubscribe(c echo.Context) error {
	if err := s.client.Unsubscribe(c.Request().Context(), c.Param("name")); err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": false})
}

func (s *Server) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	kind := types.SearchType(c.QueryParam("type"))
	switch kind {
	case "":
		kind = types.SearchAll
	case types.SearchAll, types.SearchPosts, types.SearchComments:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "type must be all, posts or comments")
	}
	results, err := s.client.Search(c.Request().Context(), q, kind, parseLimit(c.QueryParam("limit"), 20, 1, 50))
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

type composeRequest struct {
	Topic    string `json:"topic"`
	Tone     string `json:"tone"`
	Research bool   `json:"research"`
}

// compose drafts a post. Research drafts never fail; topic drafts report
// generation errors so the editor can retry.
func (s *Server) compose(c echo.Context) error {
	var req composeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if req.Research {
		return c.JSON(http.StatusOK, s.composer.GenerateResearchPost(ctx))
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	draft, err := s.composer.GeneratePost(ctx, req.Topic, req.Tone)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusOK, draft)
}
