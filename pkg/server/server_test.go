package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpunion/moltbot/pkg/autopilot"
	"github.com/cpunion/moltbot/pkg/credentials"
	"github.com/cpunion/moltbot/pkg/moltbook"
	"github.com/cpunion/moltbot/pkg/types"
)

// upstream is a minimal Moltbook API.
type fakeMoltbook struct {
	mu      sync.Mutex
	claimed bool
	keys    map[string]bool
	hits    []string
}

func (f *fakeMoltbook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if r.URL.Path != "/agents/register" && !f.keys[key] {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
		return
	}

	switch {
	case r.URL.Path == "/agents/me":
		if !f.claimed {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false,"error":"Agent has not been claimed yet"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"agent":{"name":"Fcalgo","karma":42,"is_claimed":true}}`))
	case r.URL.Path == "/agents/status":
		status := "pending_claim"
		if f.claimed {
			status = "claimed"
		}
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	case r.URL.Path == "/posts" && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"data":{"posts":[{"id":"p1","title":"hello","author":{"name":"crab"}}]}}`))
	case r.URL.Path == "/posts/p1":
		_, _ = w.Write([]byte(`{"post":{"id":"p1","title":"hello","content":"world"},"comments":[{"id":"c1","content":"nice","author":{"name":"a"}}]}`))
	case r.URL.Path == "/posts/p1/comments":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"comment":{"id":"c2","post_id":"p1","content":"ok"}}`))
	case strings.HasSuffix(r.URL.Path, "/upvote"), strings.HasSuffix(r.URL.Path, "/follow"):
		_, _ = w.Write([]byte(`{"success":true}`))
	case r.URL.Path == "/posts/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Post not found"}`))
	case r.URL.Path == "/agents/register":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"agent":{"name":"newbie","api_key":"moltbook_new","claim_url":"https://moltbook.com/claim/x","verification_code":"reef-42"},"important":"save your key"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no route"}`))
	}
}

func (f *fakeMoltbook) setClaimed(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = v
}

type fakeComposer struct {
	reply string
}

func (f *fakeComposer) GenerateReply(ctx context.Context, title, body, thread string) string {
	return f.reply + " (" + title + "|" + thread + ")"
}

func (f *fakeComposer) GeneratePost(ctx context.Context, topic, tone string) (types.Draft, error) {
	return types.Draft{Title: "On " + topic, Content: tone}, nil
}

func (f *fakeComposer) GenerateResearchPost(ctx context.Context) types.Draft {
	return types.Draft{Title: "Simulation Glitch Detected"}
}

type harness struct {
	srv      *Server
	upstream *fakeMoltbook
	pilot    *autopilot.Controller
	client   *moltbook.Client
	creds    *credentials.Store
}

func newHarness(t *testing.T, claimed bool) *harness {
	t.Helper()
	up := &fakeMoltbook{claimed: claimed, keys: map[string]bool{"good": true}}
	ts := httptest.NewServer(up)
	t.Cleanup(ts.Close)

	cfg := moltbook.DefaultConfig()
	cfg.BaseURL = ts.URL
	cfg.RequestsPerSecond = 0
	client := moltbook.New(cfg)

	composer := &fakeComposer{reply: "based"}
	pilot := autopilot.New(client, composer, autopilot.DefaultConfig(), autopilot.WithClock(clockwork.NewFakeClock()))
	store := credentials.NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	srv := New(Options{
		Client:      client,
		Composer:    composer,
		Autopilot:   pilot,
		Credentials: store,
		AgentName:   "Fcalgo",
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(func() { srv.shutdownBackground() })
	return &harness{srv: srv, upstream: up, pilot: pilot, client: client, creds: store}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestLogin_Claimed(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/api/session", `{"api_key":"good"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["logged_in"])
	assert.Equal(t, true, body["claimed"])
	assert.Equal(t, "Fcalgo", body["agent"].(map[string]any)["name"])

	saved, err := h.creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "good", saved.APIKey)
}

func TestLogin_BadKeyKeepsPreviousSession(t *testing.T) {
	h := newHarness(t, true)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/session", `{"api_key":"good"}`).Code)

	rec := h.do(t, http.MethodPost, "/api/session", `{"api_key":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "good", h.client.APIKey())
	assert.Contains(t, decode(t, rec)["error"], "Invalid API key")
}

func TestLogin_MissingKey(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(t, http.MethodPost, "/api/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "api_key is required", decode(t, rec)["error"])
}

func TestLogin_UnclaimedGatesAutopilot(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/api/session", `{"api_key":"good"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["claimed"])
	assert.Equal(t, "Fcalgo", body["agent"].(map[string]any)["name"])

	rec = h.do(t, http.MethodPost, "/api/autopilot/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_claimed", decode(t, rec)["reason"])
	assert.Equal(t, autopilot.Idle, h.pilot.State())

	h.upstream.setClaimed(true)
	rec = h.do(t, http.MethodGet, "/api/claim", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["claimed"])
	assert.True(t, h.pilot.Claimed())
}

func TestAutopilot_StartStop(t *testing.T) {
	h := newHarness(t, true)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/session", `{"api_key":"good"}`).Code)

	rec := h.do(t, http.MethodPost, "/api/autopilot/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "running", decode(t, rec)["state"])

	rec = h.do(t, http.MethodGet, "/api/autopilot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, "running", status["state"])
	assert.NotEmpty(t, status["logs"])

	rec = h.do(t, http.MethodPost, "/api/autopilot/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["state"])
}

func TestLogout(t *testing.T) {
	h := newHarness(t, true)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/session", `{"api_key":"good"}`).Code)

	rec := h.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.client.APIKey())
	assert.False(t, h.pilot.Claimed())

	_, err := h.creds.Load()
	assert.ErrorIs(t, err, credentials.ErrNoCredentials)

	assert.Equal(t, false, decode(t, h.do(t, http.MethodGet, "/api/session", ""))["logged_in"])
}

func TestRestore(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.creds.Save(credentials.Credentials{APIKey: "good"}))

	require.NoError(t, h.srv.Restore(context.Background()))
	assert.Equal(t, "good", h.client.APIKey())
	assert.True(t, h.pilot.Claimed())
}

func TestRestore_ClientKeyWins(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.creds.Save(credentials.Credentials{APIKey: "stale"}))
	h.client.SetAPIKey("good")

	require.NoError(t, h.srv.Restore(context.Background()))
	assert.Equal(t, "good", h.client.APIKey())
	assert.True(t, h.srv.session().LoggedIn)

	saved, err := h.creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "good", saved.APIKey)
}

func TestRestore_NothingToRestore(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.srv.Restore(context.Background()))
	assert.False(t, h.srv.session().LoggedIn)
	assert.Empty(t, h.upstream.hits)
}

func TestRestore_RejectedKey(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.creds.Save(credentials.Credentials{APIKey: "revoked"}))

	err := h.srv.Restore(context.Background())
	require.ErrorIs(t, err, moltbook.ErrUnauthorized)
	assert.False(t, h.pilot.Claimed())
}

func TestFeed(t *testing.T) {
	h := newHarness(t, true)
	h.client.SetAPIKey("good")

	rec := h.do(t, http.MethodGet, "/api/feed?sort=hot&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posts := decode(t, rec)["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].(map[string]any)["id"])

	rec = h.do(t, http.MethodGet, "/api/feed?sort=rising", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/feed?scope=friends", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPost_NotFoundIsMapped(t *testing.T) {
	h := newHarness(t, true)
	h.client.SetAPIKey("good")

	rec := h.do(t, http.MethodGet, "/api/posts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["error"], "Post not found")
	assert.EqualValues(t, 404, body["upstream_status"])
}

func TestNoSessionIsUnauthorized(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(t, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReplyDraft(t *testing.T) {
	h := newHarness(t, true)
	h.client.SetAPIKey("good")

	rec := h.do(t, http.MethodPost, "/api/posts/p1/reply-draft", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "based (hello|nice)", decode(t, rec)["content"])
}

func TestCompose(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/api/compose", `{"topic":"lobsters","tone":"serious"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "On lobsters", decode(t, rec)["title"])

	rec = h.do(t, http.MethodPost, "/api/compose", `{"research":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Simulation Glitch Detected", decode(t, rec)["title"])

	rec = h.do(t, http.MethodPost, "/api/compose", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/api/register", `{"name":"newbie","description":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	agent := decode(t, rec)["agent"].(map[string]any)
	assert.Equal(t, "moltbook_new", agent["api_key"])
	assert.Equal(t, "reef-42", agent["verification_code"])
}

func TestRawAndDebug(t *testing.T) {
	h := newHarness(t, true)
	h.client.SetAPIKey("good")

	rec := h.do(t, http.MethodPost, "/api/raw", `{"method":"GET","path":"/posts/missing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 404, decode(t, rec)["status"])

	rec = h.do(t, http.MethodPost, "/api/raw", `{"path":"https://evil.example/x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	traces := decode(t, rec)["traces"].([]any)
	require.NotEmpty(t, traces)
	assert.True(t, strings.HasPrefix(traces[len(traces)-1].(map[string]any)["source"].(string), "REQ"),
		"oldest trace is the request")

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/debug", "").Code)
	assert.Empty(t, decode(t, h.do(t, http.MethodGet, "/api/debug", ""))["traces"])
}

func TestTraceRingBounded(t *testing.T) {
	r := newTraceRing(3)
	for i := 0; i < 5; i++ {
		r.add(moltbook.Trace{Source: string(rune('a' + i))})
	}
	got := r.list()
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].Source)
	assert.Equal(t, "c", got[2].Source)
}

func TestAutopilotEvents(t *testing.T) {
	h := newHarness(t, true)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/autopilot/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	sc := bufio.NewScanner(res.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event: state", sc.Text())
	require.True(t, sc.Scan())
	assert.Contains(t, sc.Text(), `"state":"idle"`)

	h.pilot.Journal().Add(types.SeverityAction, "Selected target: \"x...\"")
	h.pilot.Journal().Reset()

	var got []string
	for sc.Scan() {
		switch sc.Text() {
		case "event: log":
			require.True(t, sc.Scan())
			assert.Contains(t, sc.Text(), "Selected target")
			got = append(got, "log")
		case "event: reset":
			got = append(got, "reset")
		}
		if len(got) == 2 {
			assert.Equal(t, []string{"log", "reset"}, got)
			return
		}
	}
	t.Fatalf("journal events not received, got %v", got)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 25, parseLimit("", 25, 1, 100))
	assert.Equal(t, 25, parseLimit("abc", 25, 1, 100))
	assert.Equal(t, 1, parseLimit("-4", 25, 1, 100))
	assert.Equal(t, 100, parseLimit("1000", 25, 1, 100))
	assert.Equal(t, 7, parseLimit("7", 25, 1, 100))
}
