// Package translate turns transcripts into a target language through the
// LLM gateway.
package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/config"
	"github.com/nikhilbhutani/medtranslate/internal/llm"
)

const systemPrompt = `You are a highly accurate and reliable translation engine.
Your task is to translate the user-provided text into the specified target language.
Preserve the original meaning and intent as closely as possible. Maintain the original style and tone.
If you encounter ambiguity, use your best judgment to provide the most likely and natural-sounding translation.
Reply with the translation only.
Target language: %s`

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"zh": "Chinese",
	"ja": "Japanese",
	"ar": "Arabic",
	"hi": "Hindi",
}

// labelled matches selector labels such as "Spanish (es)".
var labelled = regexp.MustCompile(`\(([A-Za-z]{2,3})\)\s*$`)

// Language is one selectable target language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Label renders the language the way the UI selector shows it.
func (l Language) Label() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.Code)
}

type Request struct {
	Text           string
	TargetLanguage string
}

// Result carries the translation and the provider and model that served it.
type Result struct {
	Text           string
	TargetLanguage string
	Provider       string
	Model          string
}

type Translator struct {
	gateway     llm.Gateway
	provider    string
	model       string
	temperature float64
	maxTokens   int
	languages   []Language
	allowed     map[string]bool
}

// New fails when the gateway cannot serve cfg.Model on provider.
func New(gateway llm.Gateway, provider string, cfg config.TranslateConfig) (*Translator, error) {
	if err := gateway.CheckModel(provider, cfg.Model); err != nil {
		return nil, fmt.Errorf("translation model: %w", err)
	}
	t := &Translator{
		gateway:     gateway,
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		allowed:     make(map[string]bool),
	}
	for _, code := range cfg.Languages {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" || t.allowed[code] {
			continue
		}
		t.allowed[code] = true
		name, ok := languageNames[code]
		if !ok {
			name = strings.ToUpper(code)
		}
		t.languages = append(t.languages, Language{Code: code, Name: name})
	}
	return t, nil
}

// Languages returns the configured target languages in configuration order.
func (t *Translator) Languages() []Language {
	out := make([]Language, len(t.languages))
	copy(out, t.languages)
	return out
}

// NormalizeLanguage accepts a bare code ("es") or a selector label
// ("Spanish (es)") and returns the lower-case code if it is supported.
func (t *Translator) NormalizeLanguage(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if m := labelled.FindStringSubmatch(code); m != nil {
		code = m[1]
	}
	code = strings.ToLower(code)
	if !t.allowed[code] {
		return "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedLanguage, raw)
	}
	return code, nil
}

func (t *Translator) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text to translate required", apperr.ErrInvalidInput)
	}
	code, err := t.NormalizeLanguage(req.TargetLanguage)
	if err != nil {
		return nil, err
	}

	resp, err := t.gateway.Chat(ctx, llm.ChatRequest{
		Provider: t.provider,
		Model:    t.model,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, code)},
			{Role: "user", Content: req.Text},
		},
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	})
	if err != nil {
		return nil, upstreamError(err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, apperr.Empty(apperr.StageTranslation, "translation")
	}

	return &Result{
		Text:           text,
		TargetLanguage: code,
		Provider:       resp.Provider,
		Model:          resp.Model,
	}, nil
}

func upstreamError(err error) error {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 && !apperr.IsTimeout(err) {
		return &apperr.UpstreamError{
			Stage:      apperr.StageTranslation,
			Cause:      apperr.CauseStatus,
			StatusCode: pe.StatusCode,
			Err:        err,
		}
	}
	return apperr.Upstream(apperr.StageTranslation, apperr.CauseTransport, err)
}
