package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/config"
	"github.com/nikhilbhutani/medtranslate/internal/llm"
)

type fakeGateway struct {
	content  string
	err      error
	modelErr error
	calls    int
	last     llm.ChatRequest
}

func (f *fakeGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Provider: "openai", Model: req.Model, Content: f.content}, nil
}

func (f *fakeGateway) CheckModel(string, string) error { return f.modelErr }

func newTestTranslator(t *testing.T, gw llm.Gateway) *Translator {
	t.Helper()
	tr, err := New(gw, "openai", config.TranslateConfig{
		Model:       "gpt-3.5-turbo",
		Languages:   []string{"fr", "es", "de", "en"},
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tr
}

func TestTranslate_Success(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{content: "  El paciente tiene fiebre leve.\n"}
	tr := newTestTranslator(t, gw)

	res, err := tr.Translate(context.Background(), Request{
		Text:           "The patient has a mild fever.",
		TargetLanguage: "es",
	})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.Text != "El paciente tiene fiebre leve." {
		t.Errorf("unexpected translation %q", res.Text)
	}
	if gw.last.Temperature != 0.2 || gw.last.MaxTokens != 500 || gw.last.Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected request parameters %+v", gw.last)
	}
	if len(gw.last.Messages) != 2 || !strings.Contains(gw.last.Messages[0].Content, "Target language: es") {
		t.Errorf("unexpected messages %+v", gw.last.Messages)
	}
	if gw.last.Messages[1].Content != "The patient has a mild fever." {
		t.Errorf("source text not forwarded: %q", gw.last.Messages[1].Content)
	}
}

func TestTranslate_AcceptsSelectorLabel(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{content: "Le patient a de la fièvre."}
	res, err := newTestTranslator(t, gw).Translate(context.Background(), Request{
		Text:           "The patient has a fever.",
		TargetLanguage: "French (fr)",
	})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.TargetLanguage != "fr" {
		t.Errorf("expected fr, got %q", res.TargetLanguage)
	}
}

func TestTranslate_RejectsBeforeCallingUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unsupported language", Request{Text: "hello", TargetLanguage: "xx"}, apperr.ErrUnsupportedLanguage},
		{"empty text", Request{Text: "   ", TargetLanguage: "es"}, apperr.ErrInvalidInput},
	}

	for _, tt := range tests {
		gw := &fakeGateway{content: "unused"}
		_, err := newTestTranslator(t, gw).Translate(context.Background(), tt.req)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
		if gw.calls != 0 {
			t.Errorf("%s: upstream called %d times", tt.name, gw.calls)
		}
	}
}

func TestTranslate_UpstreamErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gw        *fakeGateway
		wantCause apperr.Cause
	}{
		{"blank completion", &fakeGateway{content: " \n "}, apperr.CauseEmpty},
		{"status", &fakeGateway{err: &llm.ProviderError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}}, apperr.CauseStatus},
		{"transport", &fakeGateway{err: &llm.ProviderError{Provider: "openai", Err: errors.New("connection refused")}}, apperr.CauseTransport},
		{"timeout", &fakeGateway{err: &llm.ProviderError{Provider: "openai", Err: context.DeadlineExceeded}}, apperr.CauseTimeout},
	}

	for _, tt := range tests {
		_, err := newTestTranslator(t, tt.gw).Translate(context.Background(), Request{Text: "hello", TargetLanguage: "de"})
		if !errors.Is(err, apperr.ErrTranslation) {
			t.Errorf("%s: expected ErrTranslation, got %v", tt.name, err)
		}
		if got := apperr.CauseOf(err); got != tt.wantCause {
			t.Errorf("%s: expected cause %q, got %q", tt.name, tt.wantCause, got)
		}
	}
}

func TestTranslator_Languages(t *testing.T) {
	t.Parallel()

	tr, err := New(&fakeGateway{}, "openai", config.TranslateConfig{Languages: []string{"fr", "ES", "fr", " de ", "xx"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	langs := tr.Languages()
	if len(langs) != 4 {
		t.Fatalf("expected 4 languages, got %+v", langs)
	}
	if langs[1].Code != "es" || langs[1].Label() != "Spanish (es)" {
		t.Errorf("unexpected entry %+v", langs[1])
	}
	if langs[3].Name != "XX" {
		t.Errorf("expected unknown code to fall back to upper-case name, got %q", langs[3].Name)
	}
}

func TestNew_RejectsModelOfAnotherProvider(t *testing.T) {
	t.Parallel()

	gw := llm.NewGatewayWithProviders("anthropic", "", 0, llm.NewAnthropicProvider("sk-ant"))
	if _, err := New(gw, "anthropic", config.TranslateConfig{Model: "gpt-3.5-turbo"}); err == nil {
		t.Error("expected error for an OpenAI model on the anthropic provider")
	}
	if _, err := New(gw, "anthropic", config.TranslateConfig{}); err != nil {
		t.Errorf("expected provider default to be accepted, got %v", err)
	}
}

func TestTranslate_ReportsServingModel(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{content: "Hallo"}
	res, err := newTestTranslator(t, gw).Translate(context.Background(), Request{Text: "hello", TargetLanguage: "de"})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.Provider != "openai" || res.Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected provider/model %q/%q", res.Provider, res.Model)
	}
}
