package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Translate TranslateConfig
	STT       STTConfig
	TTS       TTSConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret   string
	SessionTTL  time.Duration
	BcryptCost  int
	LoginPerMin int
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	FallbackProvider string
	MaxRetries       int
}

type TranslateConfig struct {
	Model       string
	Languages   []string
	Temperature float64
	MaxTokens   int
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
	Prompt        string
}

type TTSConfig struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	Voice         string
}

type PipelineConfig struct {
	StageTimeout   time.Duration
	MaxUploadBytes int64
	TempDir        string
}

const defaultTranscriptionPrompt = "This is a high-quality transcription service. Ensure clarity, accuracy, and proper punctuation. " +
	"Recognize medical terms, technical jargon, and conversational nuances."

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is loaded first and never overrides variables
// that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	bcryptCost, err := getEnvInt("BCRYPT_COST", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	loginPerMin, err := getEnvInt("AUTH_RATE_PER_MIN", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_RATE_PER_MIN: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxTokens, err := getEnvInt("TRANSLATE_MAX_TOKENS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSLATE_MAX_TOKENS: %w", err)
	}

	temperature, err := getEnvFloat("TRANSLATE_TEMPERATURE", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSLATE_TEMPERATURE: %w", err)
	}

	stageTimeout, err := getEnvDuration("PIPELINE_STAGE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_STAGE_TIMEOUT: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 25<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			SessionTTL:  sessionTTL,
			BcryptCost:  bcryptCost,
			LoginPerMin: loginPerMin,
		},
		LLM: LLMConfig{
			OpenAIKey:        openAIKey,
			OpenAIBaseURL:    getEnv("LLM_OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Translate: TranslateConfig{
			// empty selects the serving provider's default model
			Model:       getEnv("TRANSLATE_MODEL", ""),
			Languages:   getEnvList("TRANSLATE_LANGUAGES", []string{"fr", "es", "de", "en"}),
			Temperature: temperature,
			MaxTokens:   maxTokens,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     openAIKey,
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
			Prompt:        getEnv("STT_PROMPT", defaultTranscriptionPrompt),
		},
		TTS: TTSConfig{
			OpenAIKey:     openAIKey,
			OpenAIBaseURL: getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("TTS_OPENAI_MODEL", ""),
			Voice:         getEnv("TTS_VOICE", "alloy"),
		},
		Pipeline: PipelineConfig{
			StageTimeout:   stageTimeout,
			MaxUploadBytes: int64(maxUpload),
			TempDir:        getEnv("TEMP_DIR", os.TempDir()),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	// speech synthesis always goes through the OpenAI audio API
	if c.TTS.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	for _, provider := range []string{c.LLM.DefaultProvider, c.LLM.FallbackProvider} {
		switch provider {
		case "", "openai":
		case "anthropic":
			if c.LLM.AnthropicKey == "" && !slices.Contains(missing, "ANTHROPIC_API_KEY") {
				missing = append(missing, "ANTHROPIC_API_KEY")
			}
		case "ollama":
			if c.LLM.OllamaURL == "" && !slices.Contains(missing, "OLLAMA_URL") {
				missing = append(missing, "OLLAMA_URL")
			}
		default:
			return fmt.Errorf("unknown LLM provider %q", provider)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
