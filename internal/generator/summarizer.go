package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/improvweb/improv/internal/llm"
)

const summarySystemPrompt = `You are a concise summarization engine.
Your job is to read page content and produce a short, clear summary
(2-5 sentences). Return only the summary as plain text. Do not include
headings, bullet points, or labels. No markdown.`

// Summarizer condenses page bodies into a few plain-text sentences for the
// site memory. It runs on the cheaper utility model, not the main one.
type Summarizer struct {
	client llm.Client
	model  string
}

// NewSummarizer creates a Summarizer using the given client and model.
func NewSummarizer(client llm.Client, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

// Summarize produces a short summary of body. Callers are expected to have
// truncated body already; failures are theirs to recover from.
func (s *Summarizer) Summarize(ctx context.Context, body string) (string, error) {
	temp := 0.3
	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Model:  s.model,
		System: summarySystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Summarize the following page content for later site-wide reference:\n\n" + body,
		}},
		MaxTokens:   256,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
