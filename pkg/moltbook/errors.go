package moltbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNoAPIKey         = errors.New("moltbook api key not set, please log in")
	ErrUnauthorized     = errors.New("unauthorized: invalid api key")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed, this endpoint might be incorrect")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limit exceeded, try again in a few minutes")
	ErrAlreadyFollowing = errors.New("already following")
	ErrNetwork          = errors.New("network error")
	ErrBadResponse      = errors.New("invalid response format")
)

// APIError is a non-2xx answer from the Moltbook API.
type APIError struct {
	Status  int
	Message string
	Body    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("moltbook: %s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("moltbook: HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap maps the status code onto the package sentinels so callers can
// use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if json.Valid(body) {
		e.Body = json.RawMessage(body)
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			e.Message = payload.Error
			if e.Message == "" {
				e.Message = payload.Message
			}
		}
	} else if s := strings.TrimSpace(string(body)); s != "" {
		e.Message = truncate(s, 200)
	}
	return e
}

// IsAlreadyFollowing reports whether err means the follow relation exists.
// The API has no dedicated code for it, so a 409 or a message mentioning
// "already" both count.
func IsAlreadyFollowing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyFollowing) || errors.Is(err, ErrConflict) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Message), "already")
	}
	return false
}

// IsNotClaimed reports whether err is the API telling us the agent still
// waits for its owner's verification.
func IsNotClaimed(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "claim")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
