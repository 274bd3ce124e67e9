// Package pagemem is the persisted site memory: one summarized record per
// served path, used to feed cross-page context back into generation.
package pagemem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// summarizeInputCap bounds how much of a body is handed to the summarizer.
	summarizeInputCap = 6000

	// fallbackSnippetLen is the length of the raw-body snippet used as the
	// summary when summarization fails.
	fallbackSnippetLen = 800
)

// Record is the memory entry for one path. Field names match the on-disk
// JSON format: a single pretty-printed object mapping absolute paths to
// 4-field records.
type Record struct {
	Summary     string   `json:"summary"`
	Links       []string `json:"links"`
	LastUpdated float64  `json:"last_updated"`
	Hash        string   `json:"hash"`
}

// Summarizer produces a short plain-text summary of page content.
type Summarizer interface {
	Summarize(ctx context.Context, body string) (string, error)
}

// Store is a mutex-guarded, disk-persisted mapping from normalized path to
// Record. Every mutation rewrites the whole backing file inside the same
// critical section as the map update; persistence failures are logged and
// swallowed, so the in-memory map stays authoritative for the process
// lifetime.
//
// The whole-map rewrite amplifies writes as the record count grows. At a
// production record count this wants incremental persistence or a
// write-behind journal.
type Store struct {
	mu         sync.Mutex
	pages      map[string]Record
	filePath   string
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a store backed by the JSON file at filePath. An existing file
// is loaded; a missing or unreadable file starts the store empty.
func New(filePath string, summarizer Summarizer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		pages:      make(map[string]Record),
		filePath:   filePath,
		summarizer: summarizer,
		logger:     logger,
		now:        time.Now,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("page memory unreadable, starting empty", "file", s.filePath, "error", err)
		}
		return
	}
	var pages map[string]Record
	if err := json.Unmarshal(data, &pages); err != nil {
		s.logger.Warn("page memory corrupt, starting empty", "file", s.filePath, "error", err)
		return
	}
	s.pages = pages
}

// Remember stores a summarized memory plus internal links for a path.
//
// Only text/* and application/json bodies are remembered. Summarization is
// memoized by content hash: if the stored record for path has the same hash
// and a non-empty summary, that summary is reused and the summarizer is not
// invoked. The record is replaced wholesale, never patched.
func (s *Store) Remember(ctx context.Context, path, body, mimeType string) {
	ct := strings.ToLower(mimeType)
	if !strings.HasPrefix(ct, "text/") && !strings.HasPrefix(ct, "application/json") {
		return
	}

	sum := sha256.Sum256([]byte(body))
	bodyHash := hex.EncodeToString(sum[:])

	var links []string
	if strings.HasPrefix(ct, "text/html") {
		links = ExtractLinks(body)
	}

	// Read the existing entry without holding the lock across summarization.
	s.mu.Lock()
	old, exists := s.pages[path]
	s.mu.Unlock()

	var summary string
	if exists && old.Hash == bodyHash && old.Summary != "" {
		summary = old.Summary
	} else {
		summary = s.summarize(ctx, path, body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages[path] = Record{
		Summary:     summary,
		Links:       links,
		LastUpdated: float64(s.now().UnixNano()) / float64(time.Second),
		Hash:        bodyHash,
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist page memory", "file", s.filePath, "error", err)
	}
}

func (s *Store) summarize(ctx context.Context, path, body string) string {
	text := strings.TrimSpace(body)
	if runes := []rune(text); len(runes) > summarizeInputCap {
		text = string(runes[:summarizeInputCap])
	}
	if text == "" {
		return ""
	}

	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		s.logger.Warn("summarization failed, using raw snippet", "path", path, "error", err)
		runes := []rune(text)
		if len(runes) > fallbackSnippetLen {
			return string(runes[:fallbackSnippetLen]) + " ..."
		}
		return text
	}
	return strings.TrimSpace(summary)
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.pages, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(s.filePath, data, 0644)
}

// Snapshot returns a point-in-time copy of the memory map. The returned
// records are for reading only.
func (s *Store) Snapshot() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.pages))
	for path, rec := range s.pages {
		out[path] = rec
	}
	return out
}

// Len returns the number of remembered pages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Clear drops the in-memory map without touching the backing file. Used when
// an external reset removes the file out from under the process.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[string]Record)
}
