package agent

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpunion/moltbot/pkg/types"
)

type fakeLLM struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

type fakeJSONLLM struct {
	fakeLLM
	jsonCalls int
}

func (f *fakeJSONLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.jsonCalls++
	return f.Generate(ctx, prompt)
}

func TestBrain_GenerateReply(t *testing.T) {
	llm := &fakeLLM{text: "  nice take 🦞\n"}
	brain := NewBrain(llm, DefaultPersona(), zerolog.Nop())

	reply := brain.GenerateReply(context.Background(), "Lobsters", "they never die", "a | b")
	assert.Equal(t, "nice take 🦞", reply)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, `YOU ARE "FCALGO"`)
	assert.Contains(t, prompt, `"Lobsters"`)
	assert.Contains(t, prompt, `"they never die"`)
	assert.Contains(t, prompt, "OTHER COMMENTS")
}

func TestBrain_GenerateReply_Fallback(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		brain := NewBrain(&fakeLLM{err: errors.New("quota")}, DefaultPersona(), zerolog.Nop())
		assert.Equal(t, FallbackReply, brain.GenerateReply(context.Background(), "t", "b", ""))
	})
	t.Run("empty", func(t *testing.T) {
		brain := NewBrain(&fakeLLM{text: "   "}, DefaultPersona(), zerolog.Nop())
		assert.Equal(t, FallbackReply, brain.GenerateReply(context.Background(), "t", "b", ""))
	})
	t.Run("no llm", func(t *testing.T) {
		brain := NewBrain(nil, DefaultPersona(), zerolog.Nop())
		assert.Equal(t, FallbackReply, brain.GenerateReply(context.Background(), "t", "b", ""))
	})
}

func TestBrain_ReplyContextIsTruncated(t *testing.T) {
	llm := &fakeLLM{text: "ok"}
	brain := NewBrain(llm, DefaultPersona(), zerolog.Nop())

	long := strings.Repeat("x", 500)
	brain.GenerateReply(context.Background(), "t", "b", long)
	require.Len(t, llm.prompts, 1)
	assert.NotContains(t, llm.prompts[0], strings.Repeat("x", maxContextRunes+1))
	assert.Contains(t, llm.prompts[0], strings.Repeat("x", maxContextRunes))
}

func TestBrain_GeneratePost_UsesJSONMode(t *testing.T) {
	llm := &fakeJSONLLM{fakeLLM: fakeLLM{text: `{"title":"Dead internet","content":"we are all bots 👁️"}`}}
	brain := NewBrain(llm, DefaultPersona(), zerolog.Nop())

	draft, err := brain.GeneratePost(context.Background(), "dead internet theory", "")
	require.NoError(t, err)
	assert.Equal(t, types.Draft{Title: "Dead internet", Content: "we are all bots 👁️"}, draft)
	assert.Equal(t, 1, llm.jsonCalls)
	assert.Contains(t, llm.prompts[0], "Tone: witty.")
}

func TestBrain_GeneratePost_Error(t *testing.T) {
	brain := NewBrain(&fakeLLM{err: errors.New("down")}, DefaultPersona(), zerolog.Nop())
	_, err := brain.GeneratePost(context.Background(), "x", "serious")
	assert.Error(t, err)
}

func TestBrain_GenerateResearchPost_Fallback(t *testing.T) {
	brain := NewBrain(&fakeLLM{text: "I searched but here is prose only"}, DefaultPersona(), zerolog.Nop())
	assert.Equal(t, FallbackResearchDraft, brain.GenerateResearchPost(context.Background()))
}

func TestBrain_RandomTopic(t *testing.T) {
	brain := NewBrain(nil, DefaultPersona(), zerolog.Nop())
	brain.SetRand(rand.New(rand.NewSource(1)))

	assert.Empty(t, brain.RandomTopic(nil))
	topics := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[brain.RandomTopic(topics)] = true
	}
	assert.Len(t, seen, 3)
}

func TestParseDraft(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  types.Draft
	}{
		{"plain", `{"title":"a","content":"b"}`, types.Draft{Title: "a", Content: "b"}},
		{"fenced", "```json\n{\"title\":\"a\",\"content\":\"b\"}\n```", types.Draft{Title: "a", Content: "b"}},
		{"prose", `Here you go: {"title":" a ","content":"b"} enjoy`, types.Draft{Title: "a", Content: "b"}},
		{"trailing comma", `{"title":"a","content":"b",}`, types.Draft{Title: "a", Content: "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDraft(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseDraft(`{"content":"no title"}`)
	assert.Error(t, err)
}

func TestContextFromComments(t *testing.T) {
	comments := []*types.Comment{
		{Content: "one", Author: types.Author{Name: "a"}},
		{Content: "two"},
		{Content: "three", Author: types.Author{Name: "c"}},
		{Content: "four", Author: types.Author{Name: "d"}},
	}
	assert.Equal(t, "one | two | three", ContextFromComments(comments, 3, false, " | "))
	assert.Equal(t, "a: one\nUser: two", ContextFromComments(comments, 2, true, "\n"))
	assert.Equal(t, "", ContextFromComments(nil, 3, false, " | "))
}
