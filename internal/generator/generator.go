// Package generator turns URL paths into prompts and adapts the llm client's
// event stream into plain body-fragment streams for the pipeline.
package generator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/improvweb/improv/internal/llm"
)

// Request describes one page generation.
type Request struct {
	// Path is the URL path being rendered, or RandomTopicPath.
	Path string

	// ContextData carries optional blocks fed to the model: related-page
	// summaries (SITE_MEMORY) and, for POST, the raw request body.
	ContextData string

	// Mood is the optional tone override from the request.
	Mood string

	// MaxTokens bounds the generation; zero falls back to the path heuristic.
	MaxTokens int
}

// Stream is one in-flight generation: a finite sequence of text fragments.
// Err reports a generation failure and is valid once Fragments is closed;
// a failure may leave the fragment sequence truncated.
type Stream struct {
	Fragments <-chan string

	mu  sync.Mutex
	err error
}

// Err returns the error that terminated the stream, if any. Call after
// Fragments is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Generator produces page content through a text-generation client.
type Generator struct {
	client      llm.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

// New creates a Generator using the given client and model.
func New(client llm.Client, model string, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Model returns the configured model string.
func (g *Generator) Model() string {
	return g.model
}

// Stream starts a generation for req and returns its fragment stream. The
// returned error covers request setup; failures mid-generation surface via
// Stream.Err after the fragment channel closes.
func (g *Generator) Stream(ctx context.Context, req Request) (*Stream, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = MaxTokensForPath(req.Path)
	}

	temp := g.temperature
	events, err := g.client.ChatStream(ctx, llm.ChatRequest{
		Model:       g.model,
		System:      SystemPrompt(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: BuildUserPrompt(req.Path, req.ContextData, req.Mood)}},
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan string, 64)
	stream := &Stream{Fragments: out}

	go func() {
		defer close(out)
		// Drain on early exit so the producer's send never blocks and its
		// response body gets closed.
		defer func() {
			for range events {
			}
		}()
		for ev := range events {
			switch ev.Type {
			case "text":
				select {
				case out <- ev.Text:
				case <-ctx.Done():
					stream.setErr(ctx.Err())
					return
				}
			case "error":
				stream.setErr(ev.Error)
				return
			case "done":
				if ev.Response != nil {
					g.logger.Debug("generation complete",
						"path", req.Path,
						"model", g.model,
						"input_tokens", ev.Response.Usage.InputTokens,
						"output_tokens", ev.Response.Usage.OutputTokens)
				}
				return
			}
		}
	}()

	return stream, nil
}
