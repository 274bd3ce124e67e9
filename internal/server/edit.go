package server

import (
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/improvweb/improv/internal/pipeline"
	"github.com/improvweb/improv/internal/preamble"
)

// handleEditForm renders a plain form asking how the page should change.
func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("page")
	escaped := html.EscapeString(path)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Edit `+escaped+`</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: auto; padding: 2rem; line-height: 1.6; }
    textarea { width: 100%; height: 200px; font-family: inherit; font-size: 1rem; }
    label { font-weight: bold; }
    .actions { margin-top: 1rem; }
    button { padding: 0.5rem 1rem; font-size: 1rem; }
  </style>
</head>
<body>
  <h1>Edit `+escaped+`</h1>
  <p>Describe how you want this page changed. The AI will regenerate it from
  scratch, keeping the URL's topic in mind.</p>
  <form method="POST">
    <label for="instructions">Edit instructions:</label><br>
    <textarea id="instructions" name="instructions" placeholder="e.g. Make it shorter, add a FAQ section, keep it friendly but more formal."></textarea>
    <div class="actions">
      <button type="submit">Regenerate Page</button>
      <a href="`+escaped+`" style="margin-left: 1rem;">Cancel</a>
    </div>
  </form>
</body>
</html>
`)
}

// handleEditSubmit regenerates the page with the visitor's instructions,
// replaces the cached entry, and redirects back to the page.
func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("page")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	instructions := strings.TrimSpace(r.FormValue("instructions"))
	if instructions == "" {
		instructions = "(no specific instructions)"
	}

	var capture captureSink
	s.pages.Serve(r.Context(), pipeline.Request{
		Method:       "GET",
		Path:         path,
		Refresh:      true,
		Instructions: instructions,
	}, &capture)

	if capture.header.Status >= 500 {
		w.Header().Set("Content-Type", capture.header.MimeType)
		w.WriteHeader(capture.header.Status)
		io.WriteString(w, capture.body.String())
		return
	}
	http.Redirect(w, r, path, http.StatusFound)
}

// captureSink swallows the regenerated body; the edit flow only cares that
// the cache and memory were refreshed before redirecting.
type captureSink struct {
	header preamble.Header
	body   strings.Builder
}

func (c *captureSink) WriteHeader(status int, mimeType string) {
	c.header = preamble.Header{Status: status, MimeType: mimeType}
}

func (c *captureSink) WriteString(text string) error {
	c.body.WriteString(text)
	return nil
}

func (c *captureSink) Flush() {}
