// Package llm provides LLM provider implementations.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when neither the config nor GOOGLE_MODEL names one.
const DefaultModel = "gemini-3-flash-preview"

// GeminiProvider implements agent.LLMProvider using Google GenAI Gemini.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey string // If empty, uses GOOGLE_API_KEY, then API_KEY
	Model  string // e.g., "gemini-3-flash-preview"

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string
}

// DefaultGeminiConfig returns default configuration.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{}
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("GOOGLE_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Generate produces a response from Gemini.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.GenerateWithConfig(ctx, prompt, nil)
}

// GenerateJSON asks Gemini for a JSON document.
func (p *GeminiProvider) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return p.GenerateWithConfig(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
}

// GenerateGrounded lets Gemini use Google Search before answering. The
// search tool cannot be combined with a JSON response type, so callers
// must parse free-form output.
func (p *GeminiProvider) GenerateGrounded(ctx context.Context, prompt string) (string, error) {
	return p.GenerateWithConfig(ctx, prompt, &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
}

// GenerateWithConfig produces a response with custom generation config.
func (p *GeminiProvider) GenerateWithConfig(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(result.String()), nil
}

// Model returns the model name.
func (p *GeminiProvider) Model() string {
	return p.model
}
