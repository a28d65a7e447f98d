package llm

import (
	"context"
	"fmt"
)

// Provider abstracts an LLM provider (OpenAI, Anthropic, Ollama).
type Provider interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	// Models lists the models the provider is known to serve, default first.
	Models() []string
}

// Gateway routes chat requests to a configured provider with optional
// retry and fallback.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// CheckModel reports whether provider is configured and can serve model.
	// An empty model always passes; the provider's default is used.
	CheckModel(provider, model string) error
}

// catalog lists the known models per provider. The first entry is the
// provider's default.
var catalog = map[string][]string{
	"openai":    {"gpt-3.5-turbo", "gpt-4o", "gpt-4o-mini", "gpt-4-turbo"},
	"anthropic": {"claude-3-haiku-20240307", "claude-sonnet-4-20250514"},
	"ollama":    {"llama3", "mistral"},
}

// ownerOf returns the provider whose catalog lists model, or "".
func ownerOf(model string) string {
	for provider, models := range catalog {
		for _, m := range models {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is the input for chat completions. An empty Model, or one
// that belongs to another provider, resolves to the serving provider's
// default.
type ChatRequest struct {
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the output from chat completions.
type ChatResponse struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

// ProviderError wraps a failed provider call. StatusCode is set when the
// provider answered with a non-success HTTP status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s chat (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s chat: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
