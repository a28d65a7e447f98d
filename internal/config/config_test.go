package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TRANSLATE_LANGUAGES", "")
	t.Setenv("TRANSLATE_MODEL", "")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.StageTimeout != 60*time.Second {
		t.Errorf("expected 60s stage timeout, got %v", cfg.Pipeline.StageTimeout)
	}
	if got := strings.Join(cfg.Translate.Languages, ","); got != "fr,es,de,en" {
		t.Errorf("unexpected default languages %q", got)
	}
	if cfg.LLM.MaxRetries != 0 {
		t.Errorf("expected no automatic retries, got %d", cfg.LLM.MaxRetries)
	}
	if cfg.Translate.Model != "" {
		t.Errorf("expected provider default model, got %q", cfg.Translate.Model)
	}
	if cfg.TTS.Voice != "alloy" {
		t.Errorf("expected alloy voice, got %q", cfg.TTS.Voice)
	}
	if !strings.Contains(cfg.STT.Prompt, "medical terms") {
		t.Errorf("expected domain prompt, got %q", cfg.STT.Prompt)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRANSLATE_LANGUAGES", "fr, it ,,ja")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "5s")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := strings.Join(cfg.Translate.Languages, ","); got != "fr,it,ja" {
		t.Errorf("unexpected languages %q", got)
	}
	if cfg.Pipeline.StageTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Pipeline.StageTimeout)
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate_Missing(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in %q", key, err.Error())
		}
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/app"},
		Auth:     AuthConfig{JWTSecret: "secret"},
		LLM:      LLMConfig{DefaultProvider: "openai", OpenAIKey: "sk"},
		TTS:      TTSConfig{OpenAIKey: "sk"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ProviderCredentials(t *testing.T) {
	t.Parallel()

	base := func(llm LLMConfig) *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://localhost/app"},
			Auth:     AuthConfig{JWTSecret: "secret"},
			LLM:      llm,
			TTS:      TTSConfig{OpenAIKey: "sk"},
		}
	}

	tests := []struct {
		name    string
		llm     LLMConfig
		wantErr string
	}{
		{"anthropic default without key", LLMConfig{DefaultProvider: "anthropic"}, "ANTHROPIC_API_KEY"},
		{"anthropic fallback without key", LLMConfig{DefaultProvider: "openai", FallbackProvider: "anthropic"}, "ANTHROPIC_API_KEY"},
		{"ollama without url", LLMConfig{DefaultProvider: "ollama"}, "OLLAMA_URL"},
		{"unknown provider", LLMConfig{DefaultProvider: "gemini"}, "gemini"},
		{"anthropic with key", LLMConfig{DefaultProvider: "anthropic", AnthropicKey: "sk-ant"}, ""},
		{"ollama fallback with url", LLMConfig{DefaultProvider: "openai", FallbackProvider: "ollama", OllamaURL: "http://localhost:11434"}, ""},
	}

	for _, tt := range tests {
		err := base(tt.llm).Validate()
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: expected error mentioning %s, got %v", tt.name, tt.wantErr, err)
		}
	}
}
