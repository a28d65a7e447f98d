package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nikhilbhutani/medtranslate/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	fallbackProvider string
	maxRetries       int
	backoff          time.Duration
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := newGateway(cfg.DefaultProvider, cfg.FallbackProvider, cfg.MaxRetries)

	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return g
}

// NewGatewayWithProviders builds a gateway over an explicit provider set.
func NewGatewayWithProviders(defaultProvider, fallbackProvider string, maxRetries int, providers ...Provider) Gateway {
	g := newGateway(defaultProvider, fallbackProvider, maxRetries)
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func newGateway(defaultProvider, fallbackProvider string, maxRetries int) *gateway {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  defaultProvider,
		fallbackProvider: fallbackProvider,
		maxRetries:       maxRetries,
		backoff:          500 * time.Millisecond,
	}
}

func (g *gateway) provider(name string) (Provider, error) {
	if name == "" {
		name = g.defaultProvider
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) CheckModel(providerName, model string) error {
	p, err := g.provider(providerName)
	if err != nil {
		return err
	}
	if g.fallbackProvider != "" {
		if _, err := g.provider(g.fallbackProvider); err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	}
	if model == "" || slices.Contains(p.Models(), model) {
		return nil
	}
	if owner := ownerOf(model); owner != "" && owner != p.Name() {
		return fmt.Errorf("model %q is served by %s, not %s", model, owner, p.Name())
	}
	return nil
}

// modelFor picks the model p is asked for. Models p does not know but
// another provider does fall back to p's default; unknown names pass
// through so locally pulled or newly released models still work.
func modelFor(p Provider, requested string) string {
	models := p.Models()
	if len(models) == 0 || slices.Contains(models, requested) {
		return requested
	}
	if requested == "" {
		return models[0]
	}
	if owner := ownerOf(requested); owner != "" && owner != p.Name() {
		return models[0]
	}
	return requested
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && ctx.Err() == nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		resp, err = g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("llm call",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"total_tokens", resp.TotalTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}
	req.Model = modelFor(p, req.Model)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * g.backoff
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", providerName, lastErr)
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "model", req.Model, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if g.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
