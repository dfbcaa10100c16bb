// Package llm provides interchangeable text-generation backends. The backend
// is named explicitly in configuration rather than sniffed from the endpoint
// URL; all three speak plain HTTP JSON.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"repub/internal/config"
)

// Backend names a text-generation protocol.
type Backend string

const (
	BackendOpenAI Backend = "openai" // chat-completion protocol, the default
	BackendOllama Backend = "ollama" // local text-generation protocol
	BackendGemini Backend = "gemini" // multimodal-generation protocol
)

// Generation parameters shared by all backends, matching the fixed values the
// enhancement job has always used.
const (
	maxTokens   = 4000
	temperature = 0.7
)

// Generator produces text from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// New builds the configured backend client.
func New(cfg config.LLM) (Generator, error) {
	switch Backend(cfg.Backend) {
	case BackendOpenAI, "":
		return NewOpenAIClient(cfg.Endpoint, cfg.Model, cfg.APIKey), nil
	case BackendOllama:
		return NewOllamaClient(cfg.Endpoint, cfg.Model), nil
	case BackendGemini:
		return NewGeminiClient(geminiBase(cfg.Endpoint), cfg.Model, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// geminiBase reduces a configured endpoint to the API origin the versioned
// paths are appended to. Anything that is not a Gemini host falls back to the
// public origin.
func geminiBase(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && strings.Contains(parsed.Host, "generativelanguage") {
		return parsed.Scheme + "://" + parsed.Host
	}
	return defaultGeminiBase
}

// readErrorBody captures a bounded slice of an error response for diagnostics.
func readErrorBody(body io.Reader) string {
	payload, _ := io.ReadAll(io.LimitReader(body, 1024))
	return strings.TrimSpace(string(payload))
}
