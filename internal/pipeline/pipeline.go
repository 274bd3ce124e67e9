// Package pipeline orchestrates one request: cache lookup, context assembly,
// generation, header demux, stream-vs-buffer delivery, and persistence.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/improvweb/improv/internal/cache"
	"github.com/improvweb/improv/internal/generator"
	"github.com/improvweb/improv/internal/pagemem"
	"github.com/improvweb/improv/internal/preamble"
	"github.com/improvweb/improv/internal/telemetry"
)

const (
	// relatedLimit caps how many remembered pages feed the generation context.
	relatedLimit = 5

	// relatedSummaryCap truncates each related-page summary in the context.
	relatedSummaryCap = 600
)

const (
	fallbackStatus = 500
	fallbackMime   = "text/html; charset=utf-8"
	fallbackBody   = `<!DOCTYPE html>
<html>
<head><title>Improvisation Failed</title></head>
<body>
<h1>The muse is silent</h1>
<p>Something went wrong while improvising this page. Try again in a moment.</p>
</body>
</html>
`
)

// Sink receives a response. WriteHeader is called exactly once, before any
// body text.
type Sink interface {
	WriteHeader(status int, mimeType string)
	WriteString(s string) error
	Flush()
}

// Request is one page request as seen by the pipeline.
type Request struct {
	Method   string
	Path     string
	RawQuery string

	// Mood is the optional tone override from the request.
	Mood string

	// PostBody is the raw request body for POST; empty otherwise.
	PostBody string

	// Instructions carries edit instructions when a page is being
	// regenerated on request.
	Instructions string

	// Refresh skips the cache lookup but still persists the result,
	// replacing any cached entry for the key.
	Refresh bool

	// MaxTokens overrides the per-path token heuristic; zero keeps it.
	MaxTokens int

	// Transient responses are never cached and never remembered. Used for
	// the random-topic endpoint.
	Transient bool
}

// Pipeline wires the generator, response cache, and site memory together.
type Pipeline struct {
	gen     *generator.Generator
	cache   *cache.Cache
	memory  *pagemem.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger

	// timeout bounds one generation; zero means unbounded.
	timeout time.Duration

	// coalesce collapses concurrent identical GET requests into a single
	// generation. Coalesced responses are delivered buffered, not
	// incrementally.
	coalesce bool
	group    singleflight.Group
}

// Options tunes pipeline behavior beyond its collaborators.
type Options struct {
	Timeout  time.Duration
	Coalesce bool
}

// New creates a Pipeline.
func New(gen *generator.Generator, c *cache.Cache, mem *pagemem.Store, metrics *telemetry.Metrics, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gen:      gen,
		cache:    c,
		memory:   mem,
		metrics:  metrics,
		logger:   logger,
		timeout:  opts.Timeout,
		coalesce: opts.Coalesce,
	}
}

// Serve handles one request end to end, writing the response to sink.
//
// GET requests consult the cache first; a hit is returned verbatim with
// status 200. On a miss the generator runs with related-page context, the
// preamble is split off, and the body is either fully buffered (structured
// mime types) or teed to the sink fragment by fragment. Complete GET bodies
// are written back to the cache, and every complete body is handed to the
// site memory on a detached goroutine.
func (p *Pipeline) Serve(ctx context.Context, req Request, sink Sink) {
	cacheable := req.Method == "GET" && !req.Transient
	key := cache.Key(req.Path, req.RawQuery)

	if !cacheable || req.Refresh {
		p.metrics.RecordCacheLookup("bypass")
	} else if entry, ok := p.cache.Get(key); ok {
		p.metrics.RecordCacheLookup("hit")
		sink.WriteHeader(200, entry.MimeType)
		if err := sink.WriteString(entry.Body); err != nil {
			p.logger.Debug("client gone before cached body delivered", "path", req.Path, "error", err)
		}
		return
	} else {
		p.metrics.RecordCacheLookup("miss")
	}

	if p.coalesce && cacheable {
		p.serveCoalesced(ctx, req, key, sink)
		return
	}
	p.generate(ctx, req, key, cacheable, sink)
}

type generated struct {
	header preamble.Header
	body   string
}

// serveCoalesced funnels concurrent identical-key requests into one
// generation. Every caller, the leader included, receives the buffered
// result.
func (p *Pipeline) serveCoalesced(ctx context.Context, req Request, key string, sink Sink) {
	v, err, _ := p.group.Do(key, func() (any, error) {
		var buf bufferSink
		p.generate(ctx, req, key, true, &buf)
		return generated{header: buf.header, body: buf.body.String()}, nil
	})
	if err != nil {
		p.writeFallback(sink)
		return
	}
	g := v.(generated)
	sink.WriteHeader(g.header.Status, g.header.MimeType)
	if err := sink.WriteString(g.body); err != nil {
		p.logger.Debug("client gone before coalesced body delivered", "path", req.Path, "error", err)
	}
}

// bufferSink captures a whole response so coalesced followers can replay it.
type bufferSink struct {
	header preamble.Header
	body   strings.Builder
}

func (b *bufferSink) WriteHeader(status int, mimeType string) {
	b.header = preamble.Header{Status: status, MimeType: mimeType}
}
func (b *bufferSink) WriteString(s string) error { b.body.WriteString(s); return nil }
func (b *bufferSink) Flush()                     {}

func (p *Pipeline) generate(ctx context.Context, req Request, key string, cacheable bool, sink Sink) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	stream, err := p.gen.Stream(ctx, generator.Request{
		Path:        req.Path,
		ContextData: p.buildContext(req),
		Mood:        req.Mood,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		p.metrics.RecordGeneration("failed", time.Since(start))
		p.logger.Error("generation failed to start", "path", req.Path, "error", err)
		p.writeFallback(sink)
		return
	}

	future, body := preamble.Demux(stream.Fragments)
	header := future.Wait()

	if isStructured(header.MimeType) {
		p.serveBuffered(ctx, req, key, cacheable, header, stream, body, sink, start)
		return
	}
	p.serveStreamed(ctx, req, key, cacheable, header, stream, body, sink, start)
}

// serveBuffered drains the whole body before responding so the client only
// ever sees complete structured output.
func (p *Pipeline) serveBuffered(ctx context.Context, req Request, key string, cacheable bool, header preamble.Header, stream *generator.Stream, body <-chan string, sink Sink, start time.Time) {
	var buf strings.Builder
	for frag := range body {
		buf.WriteString(frag)
	}
	if err := stream.Err(); err != nil {
		p.metrics.RecordGeneration("failed", time.Since(start))
		p.logger.Error("generation failed, structured body discarded", "path", req.Path, "error", err)
		p.writeFallback(sink)
		return
	}

	p.metrics.RecordGeneration("ok", time.Since(start))
	sink.WriteHeader(header.Status, header.MimeType)
	if err := sink.WriteString(buf.String()); err != nil {
		p.logger.Debug("client gone before structured body delivered", "path", req.Path, "error", err)
	}
	p.persist(ctx, req, key, cacheable, header.MimeType, buf.String())
}

// serveStreamed tees fragments to the client while buffering them for
// persistence. A mid-stream failure truncates the client stream and
// suppresses persistence; a failure before the first byte falls back to the
// error document.
func (p *Pipeline) serveStreamed(ctx context.Context, req Request, key string, cacheable bool, header preamble.Header, stream *generator.Stream, body <-chan string, sink Sink, start time.Time) {
	var buf strings.Builder
	wrote := false
	for frag := range body {
		if !wrote {
			sink.WriteHeader(header.Status, header.MimeType)
			wrote = true
		}
		buf.WriteString(frag)
		if err := sink.WriteString(frag); err != nil {
			p.logger.Debug("client gone mid-stream", "path", req.Path, "error", err)
			// Keep draining: the buffered body is still worth persisting.
			sink = discardSink{}
		}
		sink.Flush()
	}

	if err := stream.Err(); err != nil {
		if wrote {
			p.metrics.RecordGeneration("truncated", time.Since(start))
			p.logger.Error("generation failed mid-stream, response truncated", "path", req.Path, "error", err)
		} else {
			p.metrics.RecordGeneration("failed", time.Since(start))
			p.logger.Error("generation failed before first byte", "path", req.Path, "error", err)
			p.writeFallback(sink)
		}
		return
	}

	if !wrote {
		sink.WriteHeader(header.Status, header.MimeType)
	}
	p.metrics.RecordGeneration("ok", time.Since(start))
	p.persist(ctx, req, key, cacheable, header.MimeType, buf.String())
}

type discardSink struct{}

func (discardSink) WriteHeader(int, string)  {}
func (discardSink) WriteString(string) error { return nil }
func (discardSink) Flush()                   {}

// persist records a complete body: cache write for GETs, then a detached
// site-memory update that outlives the request.
func (p *Pipeline) persist(ctx context.Context, req Request, key string, cacheable bool, mimeType, body string) {
	if req.Transient {
		return
	}
	if cacheable {
		p.cache.Put(key, cache.Entry{MimeType: mimeType, Body: body})
	}

	remember := context.WithoutCancel(ctx)
	go func() {
		p.memory.Remember(remember, req.Path, body, mimeType)
		p.metrics.SetRememberedPages(p.memory.Len())
	}()
}

func (p *Pipeline) buildContext(req Request) string {
	var blocks []string

	related := pagemem.Related(p.memory.Snapshot(), req.Path, relatedLimit)
	if len(related) > 0 {
		var b strings.Builder
		b.WriteString("SITE_MEMORY (pages previously improvised on this site):\n")
		for _, rp := range related {
			summary := rp.Record.Summary
			if runes := []rune(summary); len(runes) > relatedSummaryCap {
				summary = string(runes[:relatedSummaryCap])
			}
			b.WriteString("- " + rp.Path + ": " + summary + "\n")
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}

	if req.PostBody != "" {
		blocks = append(blocks, "POST_DATA (raw body submitted by the visitor):\n"+req.PostBody)
	}

	if req.Instructions != "" {
		blocks = append(blocks, "EDIT_INSTRUCTIONS:\n"+req.Instructions)
	}

	return strings.Join(blocks, "\n\n")
}

func (p *Pipeline) writeFallback(sink Sink) {
	sink.WriteHeader(fallbackStatus, fallbackMime)
	if err := sink.WriteString(fallbackBody); err != nil {
		p.logger.Debug("client gone before fallback delivered", "error", err)
	}
}

// isStructured reports whether a mime type must be delivered whole rather
// than streamed.
func isStructured(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.Contains(mt, "json") || strings.Contains(mt, "xml")
}
