package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cpunion/moltbot/pkg/autopilot"
	"github.com/cpunion/moltbot/pkg/types"
)

type autopilotView struct {
	State     autopilot.State  `json:"state"`
	Countdown int              `json:"countdown"`
	Claimed   bool             `json:"claimed"`
	Logs      []types.LogEntry `json:"logs,omitempty"`
}

func (s *Server) autopilotStatus(withLogs bool) autopilotView {
	v := autopilotView{
		State:     s.pilot.State(),
		Countdown: s.pilot.Countdown(),
		Claimed:   s.pilot.Claimed(),
	}
	if withLogs {
		v.Logs = s.pilot.Logs()
	}
	return v
}

func (s *Server) getAutopilot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.autopilotStatus(true))
}

func (s *Server) startAutopilot(c echo.Context) error {
	err := s.pilot.Start(s.baseContext())
	switch {
	case errors.Is(err, autopilot.ErrNotClaimed):
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  "Agent not claimed. Automation unavailable.",
			"reason": "not_claimed",
		})
	case errors.Is(err, autopilot.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, s.autopilotStatus(false))
}

func (s *Server) stopAutopilot(c echo.Context) error {
	s.pilot.Stop()
	return c.JSON(http.StatusOK, s.autopilotStatus(false))
}

// autopilotEvents streams journal entries as "log" events, a "reset" event
// when a new run clears the journal, and the run state as a "state" event
// every second.
func (s *Server) autopilotEvents(c echo.Context) error {
	w := c.Response()
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	events := make(chan autopilot.Event, 64)
	unsubscribe := s.pilot.Subscribe(func(ev autopilot.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	sseWrite(w, "state", s.autopilotStatus(false))
	w.Flush()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Kind == autopilot.JournalReset {
				sseWrite(w, "reset", map[string]any{})
			} else {
				sseWrite(w, "log", ev.Entry)
			}
		case <-ticker.C:
			sseWrite(w, "state", s.autopilotStatus(false))
		}
		w.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", fmt.Sprint(data)))
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(string(payload), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}
