// Package moltbook is a REST client for the Moltbook social network API.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Moltbook API root.
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

// Trace is one request/response record for the debug console.
type Trace struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"` // e.g. "REQ: GET /posts?sort=hot"
	Data   any       `json:"data"`
}

// Tracer receives every Trace emitted by the client.
type Tracer func(Trace)

// Config holds client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables pacing
	Burst             int
	HTTPClient        *http.Client
	Logger            zerolog.Logger
	Tracer            Tracer
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		Logger:            zerolog.Nop(),
	}
}

// Client talks to the Moltbook API. The API key may be swapped at login and
// logout; everything else is fixed at construction.
type Client struct {
	mu     sync.RWMutex
	apiKey string
	tracer Tracer

	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		tracer:  cfg.Tracer,
		baseURL: baseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     cfg.Logger.With().Str("component", "moltbook").Logger(),
	}
}

// SetAPIKey sets the bearer credential. An empty key logs the client out.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// APIKey returns the current credential.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// SetTracer installs the debug tracer.
func (c *Client) SetTracer(t Tracer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracer = t
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) emit(source string, data any) {
	c.mu.RLock()
	t := c.tracer
	c.mu.RUnlock()
	if t != nil {
		t(Trace{Time: time.Now(), Source: source, Data: data})
	}
}

// send performs one HTTP exchange and returns the raw status and body.
// Only transport failures are returned as errors.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, public bool) (int, []byte, error) {
	logSource := method + " " + endpoint
	if payload != nil {
		if json.Valid(payload) {
			c.emit("REQ: "+logSource, json.RawMessage(payload))
		} else {
			c.emit("REQ: "+logSource, map[string]string{"body": "Binary/Form Data"})
		}
	} else {
		c.emit("REQ: "+logSource, map[string]string{"params": "None"})
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if public {
		headers.Set("Content-Type", "application/json")
	} else {
		key := c.APIKey()
		if key == "" {
			c.emit("FAIL: "+logSource, map[string]string{"message": ErrNoAPIKey.Error()})
			return 0, nil, ErrNoAPIKey
		}
		headers.Set("Authorization", "Bearer "+key)
		if payload != nil {
			headers.Set("Content-Type", "application/json")
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.emit("FAIL: "+logSource, map[string]string{"message": err.Error()})
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = headers

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.emit("FAIL: "+logSource, map[string]string{"message": err.Error()})
		c.log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("request failed")
		return 0, nil, fmt.Errorf("%w: %s: %w", ErrNetwork, logSource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.emit("FAIL: "+logSource, map[string]string{"message": err.Error()})
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return resp.StatusCode, data, nil
}

// request performs an API call and returns the decoded JSON payload.
func (c *Client) request(ctx context.Context, method, endpoint string, in any, public bool) (json.RawMessage, error) {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	logSource := method + " " + endpoint
	status, data, err := c.send(ctx, method, endpoint, payload, public)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		apiErr := newAPIError(status, data)
		if apiErr.Body != nil {
			c.emit("ERR: "+logSource, apiErr.Body)
		} else {
			c.emit("ERR: "+logSource, http.StatusText(status))
		}
		c.emit("FAIL: "+logSource, map[string]string{"message": apiErr.Error()})
		return nil, apiErr
	}

	if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		c.emit("RES: "+logSource, map[string]string{"status": "204 No Content"})
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		c.emit("FAIL: "+logSource, map[string]string{"message": "invalid json"})
		return nil, fmt.Errorf("%w: %s returned non-JSON body", ErrBadResponse, logSource)
	}
	c.emit("RES: "+logSource, json.RawMessage(data))
	return json.RawMessage(data), nil
}

// RawResponse is the result of a passthrough request.
type RawResponse struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body,omitempty"`
	Text    string          `json:"text,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Do sends an arbitrary authenticated request, as typed into a request
// console. Non-2xx answers are returned, not turned into errors.
func (c *Client) Do(ctx context.Context, method, endpoint string, body json.RawMessage) (*RawResponse, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	var payload []byte
	if len(bytes.TrimSpace(body)) > 0 && method != http.MethodGet && method != http.MethodDelete {
		payload = body
	}

	start := time.Now()
	status, data, err := c.send(ctx, method, endpoint, payload, false)
	if err != nil {
		return nil, err
	}
	out := &RawResponse{Status: status, Elapsed: time.Since(start)}
	if json.Valid(data) {
		out.Body = json.RawMessage(data)
	} else {
		out.Text = string(data)
	}
	return out, nil
}

// normalize unwraps the optional {"data": ...} envelope.
func normalize(raw json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if d := bytes.TrimSpace(env.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
			return env.Data
		}
	}
	return raw
}
