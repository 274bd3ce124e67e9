package llm

import (
	"os"
	"strings"
)

// Provider identifies a text-generation backend.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ParseModelString parses a model string into provider and model name.
//
// Supported formats:
//
//	"openrouter/auto"          → (openrouter, "openrouter/auto")
//	"openai/gpt-4o"            → (openai, "gpt-4o")
//	"ollama/llama3.2"          → (ollama, "llama3.2")
//	"claude-sonnet-4-20250514" → (anthropic, "claude-sonnet-4-20250514")
//	"gpt-4o"                   → (openai, "gpt-4o")
//
// OpenRouter model names keep their full slug because the remote API expects
// it verbatim (e.g. "openrouter/auto", "x-ai/grok-4.1-fast:free" routed via
// OPENROUTER_API_KEY).
func ParseModelString(model string) (Provider, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch prefix {
		case "openrouter":
			return ProviderOpenRouter, model
		case "openai":
			return ProviderOpenAI, name
		case "ollama":
			return ProviderOllama, name
		case "anthropic":
			return ProviderAnthropic, name
		}
		// Vendor-prefixed slugs like "x-ai/grok-4.1-fast:free" belong to
		// OpenRouter when a key is configured.
		if os.Getenv("OPENROUTER_API_KEY") != "" {
			return ProviderOpenRouter, model
		}
	}

	lower := strings.ToLower(model)
	if strings.HasPrefix(lower, "claude") {
		return ProviderAnthropic, model
	}
	if strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") {
		return ProviderOpenAI, model
	}

	if os.Getenv("OPENROUTER_API_KEY") != "" {
		return ProviderOpenRouter, model
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return ProviderOllama, model
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI, model
	}

	return ProviderAnthropic, model
}

// NewClientForModel creates the appropriate client based on the model string.
//
// Environment variables used:
//
//	OPENROUTER_API_KEY — OpenRouter API key
//	ANTHROPIC_API_KEY  — Anthropic API key (read by SDK automatically)
//	OPENAI_API_KEY     — OpenAI API key
//	OPENAI_BASE_URL    — Custom OpenAI-compatible base URL
//	OLLAMA_HOST        — Ollama server address (default: http://localhost:11434)
func NewClientForModel(model string) (Client, string) {
	provider, modelName := ParseModelString(model)

	switch provider {
	case ProviderOpenRouter:
		return NewOpenRouterClient(os.Getenv("OPENROUTER_API_KEY")), modelName

	case ProviderOllama:
		return NewOllamaClient(os.Getenv("OLLAMA_HOST")), modelName

	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			return NewOpenAICompatibleClient(baseURL, apiKey), modelName
		}
		return NewOpenAIClient(apiKey), modelName

	default: // ProviderAnthropic
		return NewAnthropicClient(), modelName
	}
}
