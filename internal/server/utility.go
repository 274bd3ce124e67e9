package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/improvweb/improv/internal/llm"
	"github.com/improvweb/improv/internal/telemetry"
)

// handleGo turns a free-text ?q= query into a path and redirects there.
func (s *Server) handleGo(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	target, err := s.mapper.MapQuery(r.Context(), q)
	if err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), r.Method, r.URL.Path).
			Error("query routing failed", "error", err)
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// handleLLM answers a raw prompt with plain model output. A model parameter
// is accepted for compatibility but always ignored; everything runs on the
// configured model.
func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	var prompt string
	if r.Method == http.MethodGet {
		prompt = r.URL.Query().Get("prompt")
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form", http.StatusBadRequest)
			return
		}
		prompt = r.FormValue("prompt")
	}
	if prompt == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Error: 'prompt' parameter is required.")
		return
	}

	temp := 0.7
	resp, err := s.assistant.Chat(r.Context(), llm.ChatRequest{
		Model:  s.assistantModel,
		System: "You are a helpful assistant.",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: prompt,
		}},
		MaxTokens:   1024,
		Temperature: &temp,
	})
	if err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), r.Method, r.URL.Path).
			Error("prompt generation failed", "error", err)
		http.Error(w, "generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, resp.Content)
}
