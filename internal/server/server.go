// Package server exposes the improv pipeline over HTTP: a catch-all page
// route plus the home page, random-topic, edit, health, and metrics
// endpoints.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/improvweb/improv/internal/generator"
	"github.com/improvweb/improv/internal/llm"
	"github.com/improvweb/improv/internal/pipeline"
	"github.com/improvweb/improv/internal/telemetry"
)

const randomMaxTokens = 3072

// Server serves improvised pages over HTTP.
type Server struct {
	pages  *pipeline.Pipeline
	random *pipeline.Pipeline
	mapper *generator.PathMapper

	// assistant answers raw prompts on the direct LLM endpoint.
	assistant      llm.Client
	assistantModel string

	mux       *http.ServeMux
	server    *http.Server
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	startTime time.Time
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the HTTP server. pages handles normal requests; random,
// which may run a different model, handles the random-topic endpoint and
// falls back to pages when nil. mapper resolves search queries and assistant
// answers the direct LLM endpoint.
func NewServer(pages, random *pipeline.Pipeline, mapper *generator.PathMapper, assistant llm.Client, assistantModel string, metrics *telemetry.Metrics, opts ...ServerOption) *Server {
	if random == nil {
		random = pages
	}
	s := &Server{
		pages:          pages,
		random:         random,
		mapper:         mapper,
		assistant:      assistant,
		assistantModel: assistantModel,
		metrics:        metrics,
		logger:         slog.Default(),
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /favicon.ico", s.handleFavicon)
	mux.HandleFunc("GET /go", s.handleGo)
	mux.HandleFunc("GET /api/llm/{$}", s.handleLLM)
	mux.HandleFunc("POST /api/llm/{$}", s.handleLLM)
	mux.HandleFunc("GET /random", s.handleRandom)
	mux.HandleFunc("GET /edit/{page...}", s.handleEditForm)
	mux.HandleFunc("POST /edit/{page...}", s.handleEditSubmit)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /", s.handlePage)
	mux.HandleFunc("POST /", s.handlePage)

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.requestMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.requestMiddleware(s.mux),
	}
	s.logger.Info("improv server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = telemetry.NewRequestID()
		}
		ctx := telemetry.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.metrics.RecordRequest(r.Method, strconv.Itoa(rec.status))
		telemetry.RequestLogger(s.logger, ctx, r.Method, r.URL.Path).Info("request handled",
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusRecorder captures the response status for logging and metrics while
// passing streaming flushes through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status":"healthy","uptime":"`+time.Since(s.startTime).Round(time.Second).String()+`"}`)
}

// handleFavicon refuses favicon requests so browsers stop burning tokens on
// them.
func (s *Server) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusGatewayTimeout)
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, homeHTML)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	s.random.Serve(r.Context(), pipeline.Request{
		Method:    "GET",
		Path:      generator.RandomTopicPath,
		Mood:      strings.TrimSpace(r.URL.Query().Get("mood")),
		MaxTokens: randomMaxTokens,
		Transient: true,
	}, newHTTPSink(w))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	req := pipeline.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Mood:     strings.TrimSpace(r.URL.Query().Get("mood")),
	}

	if r.Method == http.MethodPost {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		req.PostBody = string(body)
	}

	s.pages.Serve(r.Context(), req, newHTTPSink(w))
}

// httpSink adapts an http.ResponseWriter to the pipeline's Sink.
type httpSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	f, _ := w.(http.Flusher)
	return &httpSink{w: w, flusher: f}
}

func (s *httpSink) WriteHeader(status int, mimeType string) {
	s.w.Header().Set("Content-Type", mimeType)
	s.w.WriteHeader(status)
}

func (s *httpSink) WriteString(text string) error {
	_, err := io.WriteString(s.w, text)
	return err
}

func (s *httpSink) Flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
