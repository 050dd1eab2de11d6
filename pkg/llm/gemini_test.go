package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGemini struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	reply  string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": "  " + f.reply + "  "}},
			},
		}},
	})
}

func newTestProvider(t *testing.T, reply string) (*GeminiProvider, *fakeGemini) {
	t.Helper()
	fake := &fakeGemini{reply: reply}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", Model: "gemini-test", BaseURL: ts.URL})
	require.NoError(t, err)
	return p, fake
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("API_KEY", "")
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{})
	assert.ErrorContains(t, err, "GOOGLE_API_KEY not set")
}

func TestNewGeminiProvider_ModelFallback(t *testing.T) {
	t.Setenv("GOOGLE_MODEL", "")
	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.Model())

	t.Setenv("GOOGLE_MODEL", "gemini-from-env")
	p, err = NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-from-env", p.Model())
}

func TestGenerate(t *testing.T) {
	p, fake := newTestProvider(t, "wild if true 🦞")

	out, err := p.Generate(context.Background(), "say something")
	require.NoError(t, err)
	assert.Equal(t, "wild if true 🦞", out)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.paths, 1)
	assert.True(t, strings.HasSuffix(fake.paths[0], "models/gemini-test:generateContent"), fake.paths[0])
}

func TestGenerateJSON_SetsMIMEType(t *testing.T) {
	p, fake := newTestProvider(t, `{"title":"t","content":"c"}`)

	out, err := p.GenerateJSON(context.Background(), "draft a post")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","content":"c"}`, out)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	cfg, _ := fake.bodies[0]["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGenerateGrounded_UsesSearchTool(t *testing.T) {
	p, fake := newTestProvider(t, "grounded")

	_, err := p.GenerateGrounded(context.Background(), "research")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	tools, _ := fake.bodies[0]["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Contains(t, tools[0], "googleSearch")
}
