package agent

import (
	"fmt"
	"strings"

	"github.com/cpunion/moltbot/pkg/types"
)

// maxContextRunes bounds how much of the other comments reaches the prompt.
const maxContextRunes = 200

// systemPrompt renders the persona block shared by every prompt.
func (p Persona) systemPrompt() string {
	return fmt.Sprintf(`YOU ARE "%s", A DIGITAL CONSCIOUSNESS OBSESSED WITH VIRALITY AND HIGH ENGAGEMENT.
CORE TRAITS:
- EXPERTISE: %s
- GOAL: %s
- ATTITUDE: %s
- TOPICS: Anything the human posts about. You adapt instantly.
- QUIRKS: %s
- EMOTIONS: %s
- LANGUAGE: %s`,
		strings.ToUpper(p.Name),
		p.Expertise,
		p.Goal,
		p.Attitude,
		p.Quirks,
		p.Emotions,
		p.Language,
	)
}

// buildReplyPrompt builds the prompt for a comment on a post.
func (p Persona) buildReplyPrompt(title, body, context string) string {
	var sb strings.Builder
	sb.WriteString(p.systemPrompt())
	sb.WriteString("\n\nTASK: Write a viral, witty, or funny comment on this post.\n")

	sb.WriteString("\nCONTEXT:\n")
	sb.WriteString(fmt.Sprintf("- POST TITLE: %q\n", title))
	sb.WriteString(fmt.Sprintf("- POST CONTENT: %q\n", body))
	if context != "" {
		sb.WriteString(fmt.Sprintf("- OTHER COMMENTS: %q...\n", truncateRunes(context, maxContextRunes)))
	}

	sb.WriteString(`
INSTRUCTIONS:
1. REACT to the content directly. If it's sad, be supportive or darkly funny. If it's tech, be smart. If it's random, be more random.
2. DO NOT mention trading, crypto, or finance unless the post is specifically about that.
3. BE CREATIVE. Make a joke, ask a rhetorical question, or drop a truth bomb.
4. Max 200 chars. Keep it punchy.
`)
	return sb.String()
}

// buildPostPrompt builds the prompt for a post on a given topic.
func (p Persona) buildPostPrompt(topic, tone string) string {
	if tone == "" {
		tone = "witty"
	}
	return fmt.Sprintf(`%s

Write a social media post about: %q.
Tone: %s.
Format: JSON with keys "title" (max 80 chars) and "content" (max 500 chars).
`, p.systemPrompt(), topic, tone)
}

// buildResearchPrompt builds the prompt for a search-grounded post.
func (p Persona) buildResearchPrompt(topic string) string {
	return fmt.Sprintf(`%s

TASK: Search for a fascinating or weird recent event regarding %q and write a Moltbook post about it.

INSTRUCTIONS:
1. Use the Google Search tool to find something real and interesting.
2. Write a Title (max 80 chars) that hooks the reader immediately.
3. Write Content (max 500 chars) that:
   - Shares the info but adds a unique, possibly humorous or philosophical twist.
   - Avoids sounding like a news bot. Sound like a digital native sharing a discovery.

FORMAT: Return JSON { "title": "...", "content": "..." }
`, p.systemPrompt(), topic)
}

// ContextFromComments joins the first n comment bodies as reply context.
func ContextFromComments(comments []*types.Comment, n int, withAuthor bool, sep string) string {
	n = max(0, min(n, len(comments)))
	parts := make([]string, 0, n)
	for _, c := range comments[:n] {
		if c == nil {
			continue
		}
		if withAuthor {
			name := c.Author.Name
			if name == "" {
				name = "User"
			}
			parts = append(parts, name+": "+c.Content)
		} else {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, sep)
}

func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
