package generator

import (
	"context"
	"regexp"
	"strings"

	"github.com/improvweb/improv/internal/llm"
)

// homePath is where unroutable queries land.
const homePath = "/home"

const routerSystemPrompt = `You are a strict URL router for a web app called improv.

Your ONLY job is to convert a natural language request into a SINGLE URL PATH STRING.

Rules:
- Output ONLY the path. No explanations. No quotes. No backticks. No extra text.
- The path MUST:
  - Start with "/"
  - Be all lowercase
  - Use only: letters a-z, digits 0-9, "/", "-", "_", and "."
  - Use "-" instead of spaces.
- Do NOT include a domain, protocol, or query string (no "http://", no "https://", no "?").

- If the user explicitly mentions a rating tag (G, T, M) and is asking for a STORY,
  then use this structure:
    /story/<rating>/<slug>
  Example:
    input: "write a T-rated sci-fi story about space pirates"
    path:  "/story/t/space-pirates-sci-fi"

- If the user clearly wants a general explanation or info, you can do something like:
    "/black-holes-explained"

- If the user clearly wants an API-style response, you can do something like:
    "/api/black-holes"

- If the user clearly wants to edit or refine an existing concept, you MAY use:
    "/edit/<slug>"

- If the input is completely unclear, default to:
    "/home"

Examples (for your understanding; do NOT repeat them in the output):

User: "explain black holes like I'm 10"
Path:  "/black-holes-for-kids"

User: "T-rated fantasy story about a cursed forest"
Path:  "/story/t/cursed-forest-fantasy"

User: "give me a JSON-style summary of quantum computing"
Path:  "/api/quantum-computing-summary"

User: "edit the cat explanation to be funnier"
Path:  "/edit/cat"

Remember: respond with ONE path string ONLY.`

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	disallowedChar = regexp.MustCompile(`[^a-z0-9/_\-.]`)
	hyphenRun      = regexp.MustCompile(`-+`)
	schemeAndHost  = regexp.MustCompile(`(?i)^https?://[^/]+`)
	leadingHyphens = regexp.MustCompile(`^/-+`)
	trailingHyphen = regexp.MustCompile(`-+$`)
)

// PathMapper turns free-text search queries into site paths. Inputs that
// already look like a path are cleaned locally; everything else is routed
// through the model.
type PathMapper struct {
	client llm.Client
	model  string
}

// NewPathMapper creates a PathMapper using the given client and model.
func NewPathMapper(client llm.Client, model string) *PathMapper {
	return &PathMapper{client: client, model: model}
}

// MapQuery resolves a visitor's query to a URL path. The result always
// starts with "/" and contains only path-safe characters; unroutable input
// maps to "/home".
func (m *PathMapper) MapQuery(ctx context.Context, input string) (string, error) {
	raw := strings.TrimSpace(input)

	// A typed path is trusted, just tidied up.
	if strings.HasPrefix(raw, "/") {
		return cleanTypedPath(raw), nil
	}

	temp := 0.2
	resp, err := m.client.Chat(ctx, llm.ChatRequest{
		Model:  m.model,
		System: routerSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "User request: " + raw + "\n\nReturn ONLY the URL path.",
		}},
		MaxTokens:   64,
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}

	return normalizeCandidate(resp.Content), nil
}

func cleanTypedPath(raw string) string {
	path := strings.ToLower(raw)
	path = whitespaceRun.ReplaceAllString(path, "-")
	path = disallowedChar.ReplaceAllString(path, "")
	path = hyphenRun.ReplaceAllString(path, "-")
	if path == "" || path == "/" {
		return homePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// normalizeCandidate sanitizes model output into a usable path: first
// non-empty line, host stripped, lowercased, disallowed characters replaced
// by hyphens, hyphen runs collapsed.
func normalizeCandidate(output string) string {
	var candidate string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			candidate = line
			break
		}
	}
	if candidate == "" {
		return homePath
	}

	candidate = schemeAndHost.ReplaceAllString(candidate, "")
	if !strings.HasPrefix(candidate, "/") {
		candidate = "/" + candidate
	}

	candidate = strings.ToLower(candidate)
	candidate = whitespaceRun.ReplaceAllString(candidate, "-")
	candidate = disallowedChar.ReplaceAllString(candidate, "-")
	candidate = hyphenRun.ReplaceAllString(candidate, "-")
	candidate = leadingHyphens.ReplaceAllString(candidate, "/")
	if candidate == "" || candidate == "/" {
		return homePath
	}

	candidate = trailingHyphen.ReplaceAllString(candidate, "")
	if candidate == "" {
		return homePath
	}
	return candidate
}
