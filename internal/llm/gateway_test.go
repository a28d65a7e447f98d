package llm

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeProvider struct {
	name    string
	fail    int
	err     error
	calls   int
	content string
	// serves, when set, rejects every other model with a 404
	serves string
	models []string
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return catalog[f.name] }

func (f *fakeProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	f.models = append(f.models, req.Model)
	if f.calls <= f.fail {
		return nil, f.err
	}
	if f.serves != "" && req.Model != f.serves {
		return nil, &ProviderError{Provider: f.name, StatusCode: 404, Err: errors.New("model not found: " + req.Model)}
	}
	return &ChatResponse{Provider: f.name, Model: req.Model, Content: f.content}, nil
}

func TestGateway_DefaultProvider(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", content: "hola"}
	g := NewGatewayWithProviders("openai", "", 0, p)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-3.5-turbo"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hola" || p.calls != 1 {
		t.Errorf("unexpected response %+v after %d calls", resp, p.calls)
	}
}

func TestGateway_NoRetryByDefault(t *testing.T) {
	t.Parallel()

	upstream := &ProviderError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}
	p := &fakeProvider{name: "openai", fail: 5, err: upstream}
	g := NewGatewayWithProviders("openai", "", 0, p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	if p.calls != 1 {
		t.Errorf("expected a single attempt, got %d", p.calls)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 500 {
		t.Errorf("expected ProviderError with status 500, got %v", err)
	}
}

func TestGateway_Retries(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", fail: 2, err: errors.New("flaky"), content: "ok"}
	g := NewGatewayWithProviders("openai", "", 2, p).(*gateway)
	g.backoff = time.Millisecond

	resp, err := g.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "ok" || p.calls != 3 {
		t.Errorf("unexpected result %+v after %d calls", resp, p.calls)
	}
}

func TestGateway_Fallback(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "openai", fail: 1, err: errors.New("down")}
	fallback := &fakeProvider{name: "anthropic", content: "bonjour"}
	g := NewGatewayWithProviders("openai", "anthropic", 0, primary, fallback)

	resp, err := g.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Provider != "anthropic" || fallback.calls != 1 {
		t.Errorf("expected fallback response, got %+v", resp)
	}
}

func TestGateway_UnknownProvider(t *testing.T) {
	t.Parallel()

	g := NewGatewayWithProviders("openai", "", 0)
	if _, err := g.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error for unconfigured provider")
	}
}

func TestGateway_FallbackUsesItsOwnModel(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "openai", fail: 100, err: errors.New("down")}
	fallback := &fakeProvider{name: "anthropic", serves: "claude-3-haiku-20240307", content: "bonjour"}
	g := NewGatewayWithProviders("openai", "anthropic", 0, primary, fallback)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-3.5-turbo"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "bonjour" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(primary.models) != 1 || primary.models[0] != "gpt-3.5-turbo" {
		t.Errorf("primary received models %v", primary.models)
	}
	if len(fallback.models) != 1 || fallback.models[0] != "claude-3-haiku-20240307" {
		t.Errorf("fallback received models %v", fallback.models)
	}
}

func TestGateway_ResolvesModelPerProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		provider  string
		requested string
		want      string
	}{
		{"empty uses default", "ollama", "", "llama3"},
		{"own model kept", "openai", "gpt-4o", "gpt-4o"},
		{"foreign model replaced", "anthropic", "gpt-4o", "claude-3-haiku-20240307"},
		{"unlisted tag passes through", "ollama", "llama3.1:8b", "llama3.1:8b"},
	}

	for _, tt := range tests {
		p := &fakeProvider{name: tt.provider, content: "ok"}
		g := NewGatewayWithProviders(tt.provider, "", 0, p)
		resp, err := g.Chat(context.Background(), ChatRequest{Model: tt.requested})
		if err != nil {
			t.Fatalf("%s: Chat failed: %v", tt.name, err)
		}
		if resp.Model != tt.want {
			t.Errorf("%s: expected model %q, got %q", tt.name, tt.want, resp.Model)
		}
	}
}

func TestGateway_CheckModel(t *testing.T) {
	t.Parallel()

	g := NewGatewayWithProviders("anthropic", "", 0,
		&fakeProvider{name: "openai"},
		&fakeProvider{name: "anthropic"},
	)

	tests := []struct {
		name     string
		provider string
		model    string
		wantErr  bool
	}{
		{"default model", "anthropic", "", false},
		{"listed model", "anthropic", "claude-sonnet-4-20250514", false},
		{"model of another provider", "anthropic", "gpt-3.5-turbo", true},
		{"unlisted model", "openai", "gpt-4.1", false},
		{"unconfigured provider", "ollama", "", true},
		{"empty provider means default", "", "gpt-4o", true},
	}

	for _, tt := range tests {
		err := g.CheckModel(tt.provider, tt.model)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: CheckModel(%q, %q) = %v, wantErr %v", tt.name, tt.provider, tt.model, err, tt.wantErr)
		}
	}
}

func TestGateway_CheckModelRequiresFallback(t *testing.T) {
	t.Parallel()

	g := NewGatewayWithProviders("openai", "anthropic", 0, &fakeProvider{name: "openai"})
	if err := g.CheckModel("openai", ""); err == nil {
		t.Error("expected error for unconfigured fallback provider")
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	if got := CalculateCost("gpt-3.5-turbo", 1000, 1000); math.Abs(got-0.002) > 1e-9 {
		t.Errorf("unexpected cost %v", got)
	}
	if got := CalculateCost("llama3", 1000, 1000); got != 0 {
		t.Errorf("expected local model to be free, got %v", got)
	}
}
