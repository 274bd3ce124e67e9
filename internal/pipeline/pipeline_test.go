package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/improvweb/improv/internal/cache"
	"github.com/improvweb/improv/internal/generator"
	"github.com/improvweb/improv/internal/llm"
	"github.com/improvweb/improv/internal/pagemem"
	"github.com/improvweb/improv/internal/telemetry"
)

type testSink struct {
	mu          sync.Mutex
	status      int
	mimeType    string
	body        strings.Builder
	headerCalls int
	writeCalls  int
}

func (s *testSink) WriteHeader(status int, mimeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.mimeType = mimeType
	s.headerCalls++
}

func (s *testSink) WriteString(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body.WriteString(text)
	s.writeCalls++
	return nil
}

func (s *testSink) Flush() {}

func (s *testSink) snapshot() (int, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.mimeType, s.body.String()
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, body string) (string, error) {
	if len(body) > 40 {
		body = body[:40]
	}
	return "summary of: " + body, nil
}

type fixture struct {
	mock     *llm.MockClient
	cache    *cache.Cache
	memory   *pagemem.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T, opts Options, responses ...llm.MockResponse) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	mock := llm.NewMockClient(responses...)
	gen := generator.New(mock, "test-model", 0.7, logger)
	c := cache.New(0, 0)
	mem := pagemem.New(filepath.Join(t.TempDir(), "memory.json"), stubSummarizer{}, logger)
	p := New(gen, c, mem, telemetry.NewMetrics(), logger, opts)
	return &fixture{mock: mock, cache: c, memory: mem, pipeline: p}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServeStreamsGeneratedPage(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<h1>Cats</h1>", "<p>purr</p>"},
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)

	status, mime, body := sink.snapshot()
	if status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
	if mime != "text/html; charset=utf-8" {
		t.Errorf("mime = %q", mime)
	}
	if body != "<h1>Cats</h1><p>purr</p>" {
		t.Errorf("body = %q", body)
	}
	if sink.writeCalls != 2 {
		t.Errorf("writeCalls = %d, want one per fragment", sink.writeCalls)
	}
}

func TestRepeatGETServedFromCacheWithoutRegeneration(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<h1>first</h1>"},
	})

	var first testSink
	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", RawQuery: "mood=happy"}, &first)

	var second testSink
	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", RawQuery: "mood=happy"}, &second)

	if f.mock.CallCount() != 1 {
		t.Errorf("generator invoked %d times, want 1", f.mock.CallCount())
	}
	_, _, firstBody := first.snapshot()
	status, mime, secondBody := second.snapshot()
	if secondBody != firstBody {
		t.Errorf("cached body %q differs from original %q", secondBody, firstBody)
	}
	if status != 200 || mime != "text/html; charset=utf-8" {
		t.Errorf("cached response = (%d, %q)", status, mime)
	}
}

func TestDistinctQueryStringsCacheSeparately(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<p>page</p>"},
	})

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", RawQuery: "a=1"}, &testSink{})
	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", RawQuery: "a=2"}, &testSink{})

	if f.mock.CallCount() != 2 {
		t.Errorf("generator invoked %d times, want 2 for distinct queries", f.mock.CallCount())
	}
}

func TestJSONResponseIsBufferedWhole(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"200 application/json\n", `{"a"`, `:1}`},
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/api/example"}, &sink)

	status, mime, body := sink.snapshot()
	if status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
	if mime != "application/json; charset=utf-8" {
		t.Errorf("mime = %q", mime)
	}
	if body != `{"a":1}` {
		t.Errorf("body = %q, want exact JSON", body)
	}
	if sink.writeCalls != 1 {
		t.Errorf("writeCalls = %d, want a single buffered write", sink.writeCalls)
	}
}

func TestPOSTBypassesCache(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<p>submitted</p>"},
	})

	req := Request{Method: "POST", Path: "/guestbook", PostBody: "name=ada"}
	f.pipeline.Serve(context.Background(), req, &testSink{})
	f.pipeline.Serve(context.Background(), req, &testSink{})

	if f.mock.CallCount() != 2 {
		t.Errorf("generator invoked %d times, want 2 (POST never cached)", f.mock.CallCount())
	}
	if f.cache.Len() != 0 {
		t.Errorf("cache has %d entries after POSTs, want 0", f.cache.Len())
	}
}

func TestPOSTBodyReachesPrompt(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "ok"},
	})

	f.pipeline.Serve(context.Background(), Request{Method: "POST", Path: "/guestbook", PostBody: "name=ada&note=hi"}, &testSink{})

	calls := f.mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	prompt := calls[0].Messages[0].Content
	if !strings.Contains(prompt, "POST_DATA") || !strings.Contains(prompt, "name=ada&note=hi") {
		t.Errorf("prompt missing POST body:\n%s", prompt)
	}
}

func TestMoodReachesPrompt(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "arr"},
	})

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", Mood: "grumpy pirate"}, &testSink{})

	prompt := f.mock.Calls()[0].Messages[0].Content
	if !strings.Contains(prompt, "MOOD_OVERRIDE: grumpy pirate") {
		t.Errorf("prompt missing mood override:\n%s", prompt)
	}
}

func TestRelatedSummariesFeedContext(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<p>hybrids</p>"},
	})
	f.memory.Remember(context.Background(), "/electric-cars", "<h1>Electric cars</h1>", "text/html")

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cars/hybrid"}, &testSink{})

	prompt := f.mock.Calls()[0].Messages[0].Content
	if !strings.Contains(prompt, "SITE_MEMORY") || !strings.Contains(prompt, "/electric-cars") {
		t.Errorf("prompt missing related-page context:\n%s", prompt)
	}
}

func TestSuccessfulGETIsRemembered(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", `<a href="/kittens">kittens</a>`},
	})

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &testSink{})

	waitFor(t, "detached remember", func() bool { return f.memory.Len() == 1 })
	rec, ok := f.memory.Snapshot()["/cat"]
	if !ok {
		t.Fatal("no memory record for /cat")
	}
	if len(rec.Links) != 1 || rec.Links[0] != "/kittens" {
		t.Errorf("links = %v, want [/kittens]", rec.Links)
	}
}

func TestTransientRequestNeverPersisted(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<h1>Surprise</h1>"},
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/random", Transient: true}, &sink)

	if _, _, body := sink.snapshot(); body != "<h1>Surprise</h1>" {
		t.Errorf("body = %q", body)
	}
	if f.cache.Len() != 0 {
		t.Errorf("transient response cached: %d entries", f.cache.Len())
	}
	time.Sleep(50 * time.Millisecond)
	if f.memory.Len() != 0 {
		t.Errorf("transient response remembered: %d records", f.memory.Len())
	}
}

func TestGenerationFailureBeforeOutputFallsBack(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{Error: fmt.Errorf("provider down")})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)

	status, mime, body := sink.snapshot()
	if status != 500 {
		t.Errorf("status = %d, want 500", status)
	}
	if mime != "text/html; charset=utf-8" {
		t.Errorf("mime = %q", mime)
	}
	if !strings.Contains(body, "muse is silent") {
		t.Errorf("body is not the fallback document: %q", body)
	}
	if f.cache.Len() != 0 {
		t.Error("fallback document was cached")
	}
}

func TestMidStreamFailureTruncatesAndSuppressesPersistence(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"text/html\n", "<h1>partial"},
		FailAfter: 2,
		Error:     fmt.Errorf("upstream reset"),
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)

	status, _, body := sink.snapshot()
	if status != 200 {
		t.Errorf("status = %d, want 200 (already committed)", status)
	}
	if body != "<h1>partial" {
		t.Errorf("body = %q, want the truncated prefix", body)
	}
	if f.cache.Len() != 0 {
		t.Error("partial body was cached")
	}
	time.Sleep(50 * time.Millisecond)
	if f.memory.Len() != 0 {
		t.Error("partial body was remembered")
	}
}

func TestMidStreamFailureOnStructuredBodyFallsBack(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"200 application/json\n", `{"partial":`},
		FailAfter: 2,
		Error:     fmt.Errorf("upstream reset"),
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/api/example"}, &sink)

	status, _, body := sink.snapshot()
	if status != 500 {
		t.Errorf("status = %d, want 500 (no partial JSON ever leaves)", status)
	}
	if strings.Contains(body, "partial") {
		t.Errorf("partial JSON reached the client: %q", body)
	}
}

func TestHeaderlessStreamServedAsHTML(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"just some ", "prose with no header"},
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)

	status, mime, body := sink.snapshot()
	if status != 200 || mime != "text/html; charset=utf-8" {
		t.Errorf("header = (%d, %q), want default", status, mime)
	}
	if body != "just some prose with no header" {
		t.Errorf("body = %q", body)
	}
}

func TestEmptyBodyStillGetsHeader(t *testing.T) {
	f := newFixture(t, Options{}, llm.MockResponse{
		Fragments: []string{"204 text/plain\n"},
	})
	var sink testSink

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)

	status, mime, body := sink.snapshot()
	if status != 204 || mime != "text/plain; charset=utf-8" {
		t.Errorf("header = (%d, %q)", status, mime)
	}
	if body != "" {
		t.Errorf("body = %q, want empty", body)
	}
	if sink.headerCalls != 1 {
		t.Errorf("headerCalls = %d, want 1", sink.headerCalls)
	}
}

// gatedClient blocks inside ChatStream until released so concurrent requests
// can pile up behind one in-flight generation.
type gatedClient struct {
	inner   llm.Client
	release chan struct{}
}

func (g *gatedClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return g.inner.Chat(ctx, req)
}

func (g *gatedClient) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.ChatStream(ctx, req)
}

func TestCoalescingCollapsesConcurrentIdenticalGETs(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mock := llm.NewMockClient(llm.MockResponse{
		Fragments: []string{"text/html\n", "<h1>once</h1>"},
	})
	gated := &gatedClient{inner: mock, release: make(chan struct{})}
	gen := generator.New(gated, "test-model", 0.7, logger)
	c := cache.New(0, 0)
	mem := pagemem.New(filepath.Join(t.TempDir(), "memory.json"), stubSummarizer{}, logger)
	p := New(gen, c, mem, telemetry.NewMetrics(), logger, Options{Coalesce: true})

	const n = 5
	sinks := make([]*testSink, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		sinks[i] = &testSink{}
		wg.Add(1)
		go func(s *testSink) {
			defer wg.Done()
			p.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, s)
		}(sinks[i])
	}

	// Let the followers park behind the in-flight leader before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	if got := mock.CallCount(); got != 1 {
		t.Errorf("generator invoked %d times, want 1", got)
	}
	for i, s := range sinks {
		status, _, body := s.snapshot()
		if status != 200 || body != "<h1>once</h1>" {
			t.Errorf("sink %d got (%d, %q)", i, status, body)
		}
	}
}

func TestGenerationTimeoutFallsBack(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mock := llm.NewMockClient(llm.MockResponse{
		Fragments: []string{"text/html\n", "never delivered"},
	})
	gated := &gatedClient{inner: mock, release: make(chan struct{})}
	t.Cleanup(func() { close(gated.release) })

	gen := generator.New(gated, "test-model", 0.7, logger)
	c := cache.New(0, 0)
	mem := pagemem.New(filepath.Join(t.TempDir(), "memory.json"), stubSummarizer{}, logger)
	p := New(gen, c, mem, telemetry.NewMetrics(), logger, Options{Timeout: 20 * time.Millisecond})

	var sink testSink
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &sink)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after timeout")
	}
	if status, _, _ := sink.snapshot(); status != 500 {
		t.Errorf("status = %d, want 500 after timeout", status)
	}
}

func TestRefreshRegeneratesAndReplacesCacheEntry(t *testing.T) {
	f := newFixture(t, Options{},
		llm.MockResponse{Fragments: []string{"text/html\n", "<p>v1</p>"}},
		llm.MockResponse{Fragments: []string{"text/html\n", "<p>v2</p>"}},
	)

	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &testSink{})
	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat", Refresh: true, Instructions: "make it shorter"}, &testSink{})

	if f.mock.CallCount() != 2 {
		t.Fatalf("generator invoked %d times, want 2 (refresh bypasses lookup)", f.mock.CallCount())
	}
	prompt := f.mock.Calls()[1].Messages[0].Content
	if !strings.Contains(prompt, "EDIT_INSTRUCTIONS") || !strings.Contains(prompt, "make it shorter") {
		t.Errorf("refresh prompt missing edit instructions:\n%s", prompt)
	}

	var after testSink
	f.pipeline.Serve(context.Background(), Request{Method: "GET", Path: "/cat"}, &after)
	if f.mock.CallCount() != 2 {
		t.Errorf("generator invoked again after refresh; cache entry not replaced")
	}
	if _, _, body := after.snapshot(); body != "<p>v2</p>" {
		t.Errorf("cached body = %q, want refreshed v2", body)
	}
}

func TestIsStructured(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"application/json; charset=utf-8", true},
		{"application/xml; charset=utf-8", true},
		{"text/xml; charset=utf-8", true},
		{"text/html; charset=utf-8", false},
		{"text/plain; charset=utf-8", false},
		{"image/svg+xml", true},
	}
	for _, tt := range tests {
		if got := isStructured(tt.mime); got != tt.want {
			t.Errorf("isStructured(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}
