package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/cpunion/moltbot/pkg/moltbook"
)

const defaultTraceSize = 100

// traceRing keeps the most recent client traces, newest first.
type traceRing struct {
	mu    sync.Mutex
	size  int
	items []moltbook.Trace
}

func newTraceRing(size int) *traceRing {
	if size <= 0 {
		size = defaultTraceSize
	}
	return &traceRing{size: size}
}

func (r *traceRing) add(t moltbook.Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]moltbook.Trace{t}, r.items...)
	if len(r.items) > r.size {
		r.items = r.items[:r.size]
	}
}

func (r *traceRing) list() []moltbook.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]moltbook.Trace, len(r.items))
	copy(out, r.items)
	return out
}

func (r *traceRing) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

func (s *Server) getDebug(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"traces": s.traces.list()})
}

func (s *Server) clearDebug(c echo.Context) error {
	s.traces.clear()
	return c.NoContent(http.StatusNoContent)
}

type rawRequest struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body"`
}

// raw forwards a hand-written request to the Moltbook API. Upstream errors
// come back as data, not as failures of this endpoint.
func (s *Server) raw(c echo.Context) error {
	var req rawRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	if strings.Contains(path, "://") {
		return echo.NewHTTPError(http.StatusBadRequest, "path must be relative to the API root")
	}
	res, err := s.client.Do(c.Request().Context(), req.Method, path, req.Body)
	if err != nil {
		return upstream(err)
	}
	return c.JSON(http.StatusOK, res)
}
