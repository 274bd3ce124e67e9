// Package llm defines the text-generation client abstraction for the improv server.
package llm

import (
	"context"
)

// Role represents a message sender role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for a single call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of all token fields.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ChatRequest contains parameters for a generation call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// ChatResponse contains the model's complete response.
type ChatResponse struct {
	Content    string     `json:"content"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// StreamEvent represents an incremental event during streaming.
// The stream is a finite sequence of "text" events followed by exactly one
// "done" or "error" event, after which the channel is closed.
type StreamEvent struct {
	Type string `json:"type"` // "text", "done", "error"

	// Text events carry one fragment of generated output.
	Text string `json:"text,omitempty"`

	// Done events carry the accumulated response.
	Response *ChatResponse `json:"response,omitempty"`

	// Error events
	Error error `json:"-"`
}

// Client is the interface for text-generation backends.
type Client interface {
	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a request and returns a channel of streaming events.
	// The returned error covers request setup only; mid-stream failures are
	// delivered as an "error" event.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
}
