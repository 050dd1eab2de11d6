package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/cpunion/moltbot/pkg/types"
)

// LLMProvider defines the interface for language model backends.
type LLMProvider interface {
	// Generate produces a response given a prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// JSONProvider is implemented by backends that can force JSON output.
type JSONProvider interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// GroundedProvider is implemented by backends with web search grounding.
type GroundedProvider interface {
	GenerateGrounded(ctx context.Context, prompt string) (string, error)
}

// FallbackReply is posted when generation fails.
const FallbackReply = "wild if true 🦞"

// FallbackResearchDraft is used when a research post cannot be generated.
var FallbackResearchDraft = types.Draft{
	Title:   "Simulation Glitch Detected",
	Content: "Tried to fetch the news but the timeline is unstable. Just remember: if you can read this, you are the protagonist. 🦞 #glitch",
}

var errEmptyDraft = errors.New("draft has no title")

// Brain turns posts into replies and topics into drafts. Reply and research
// generation never fail; they degrade to fixed fallbacks.
type Brain struct {
	llm     LLMProvider
	persona Persona
	log     zerolog.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

// NewBrain creates a Brain speaking as persona.
func NewBrain(llm LLMProvider, persona Persona, logger zerolog.Logger) *Brain {
	return &Brain{
		llm:     llm,
		persona: persona,
		log:     logger.With().Str("component", "brain").Logger(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the random source, for deterministic tests.
func (b *Brain) SetRand(r *rand.Rand) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rand = r
}

// Persona returns the persona in use.
func (b *Brain) Persona() Persona {
	return b.persona
}

// GenerateReply writes a comment for a post. It returns FallbackReply when
// the model errors or answers with nothing.
func (b *Brain) GenerateReply(ctx context.Context, title, body, context string) string {
	if b.llm == nil {
		return FallbackReply
	}
	prompt := b.persona.buildReplyPrompt(title, body, context)
	reply, err := b.llm.Generate(ctx, prompt)
	if err != nil {
		b.log.Warn().Err(err).Msg("reply generation failed, using fallback")
		return FallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		b.log.Warn().Msg("empty reply from model, using fallback")
		return FallbackReply
	}
	return reply
}

// GeneratePost writes a post about topic. Unlike replies, failures are
// returned so an editor can retry.
func (b *Brain) GeneratePost(ctx context.Context, topic, tone string) (types.Draft, error) {
	if b.llm == nil {
		return types.Draft{}, fmt.Errorf("no LLM configured")
	}
	prompt := b.persona.buildPostPrompt(topic, tone)

	var text string
	var err error
	if jp, ok := b.llm.(JSONProvider); ok {
		text, err = jp.GenerateJSON(ctx, prompt)
	} else {
		text, err = b.llm.Generate(ctx, prompt)
	}
	if err != nil {
		return types.Draft{}, fmt.Errorf("generate post: %w", err)
	}
	draft, err := ParseDraft(text)
	if err != nil {
		return types.Draft{}, fmt.Errorf("generate post: %w", err)
	}
	return draft, nil
}

// GenerateResearchPost picks a random persona topic, lets the model search
// for something recent about it and writes a post. It falls back to
// FallbackResearchDraft on any failure.
func (b *Brain) GenerateResearchPost(ctx context.Context) types.Draft {
	if b.llm == nil {
		return FallbackResearchDraft
	}
	topic := b.RandomTopic(b.persona.Topics)
	prompt := b.persona.buildResearchPrompt(topic)

	var text string
	var err error
	if gp, ok := b.llm.(GroundedProvider); ok {
		text, err = gp.GenerateGrounded(ctx, prompt)
	} else {
		text, err = b.llm.Generate(ctx, prompt)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("research post failed, using fallback")
		return FallbackResearchDraft
	}
	draft, err := ParseDraft(text)
	if err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("research post unparsable, using fallback")
		return FallbackResearchDraft
	}
	return draft
}

// RandomTopic returns a uniformly chosen topic, or "" for an empty list.
func (b *Brain) RandomTopic(topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return topics[b.rand.Intn(len(topics))]
}

// ParseDraft extracts a {title, content} object from model output, which
// may be fenced, surrounded by prose, or slightly malformed.
func ParseDraft(text string) (types.Draft, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		} else {
			text = text[start:]
		}
	}

	var draft types.Draft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return types.Draft{}, fmt.Errorf("invalid draft json: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &draft); err != nil {
			return types.Draft{}, fmt.Errorf("invalid draft json after repair: %w", err)
		}
	}
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Content = strings.TrimSpace(draft.Content)
	if draft.Title == "" {
		return types.Draft{}, errEmptyDraft
	}
	return draft, nil
}
