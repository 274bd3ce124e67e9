package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse configures a single response from the mock client.
type MockResponse struct {
	Content string
	Usage   TokenUsage
	Error   error

	// Fragments, when set, overrides Content for streaming calls so tests
	// can control exactly how the output is chunked.
	Fragments []string

	// FailAfter, when > 0, emits that many fragments and then an error event
	// (mid-stream failure).
	FailAfter int
}

// MockClient is a configurable mock text-generation client for testing.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	callIndex int
	calls     []ChatRequest
}

// NewMockClient creates a mock client with a sequence of responses.
// Responses are returned in order; if exhausted, the last response repeats.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

// Calls returns a copy of all requests received so far.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockClient) next(req ChatRequest) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return MockResponse{}, fmt.Errorf("mock: no responses configured")
	}

	idx := m.callIndex
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.callIndex++
	}
	return m.responses[idx], nil
}

// Chat returns the next configured response.
func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.FailAfter == 0 {
		return nil, resp.Error
	}

	content := resp.Content
	if len(resp.Fragments) > 0 {
		content = ""
		for _, f := range resp.Fragments {
			content += f
		}
	}
	return &ChatResponse{Content: content, StopReason: "end_turn", Usage: resp.Usage}, nil
}

// ChatStream returns streaming events for the next configured response.
func (m *MockClient) ChatStream(_ context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.FailAfter == 0 {
		return nil, resp.Error
	}

	fragments := resp.Fragments
	if len(fragments) == 0 && resp.Content != "" {
		fragments = []string{resp.Content}
	}

	ch := make(chan StreamEvent, len(fragments)+1)
	go func() {
		defer close(ch)

		var full string
		for i, f := range fragments {
			if resp.FailAfter > 0 && i >= resp.FailAfter {
				ch <- StreamEvent{Type: "error", Error: resp.Error}
				return
			}
			full += f
			ch <- StreamEvent{Type: "text", Text: f}
		}
		if resp.FailAfter > 0 && resp.FailAfter >= len(fragments) {
			ch <- StreamEvent{Type: "error", Error: resp.Error}
			return
		}
		ch <- StreamEvent{Type: "done", Response: &ChatResponse{
			Content:    full,
			StopReason: "end_turn",
			Usage:      resp.Usage,
		}}
	}()

	return ch, nil
}
