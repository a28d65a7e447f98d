package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/medtranslate/internal/api"
	"github.com/nikhilbhutani/medtranslate/internal/api/handlers"
	"github.com/nikhilbhutani/medtranslate/internal/auth"
	"github.com/nikhilbhutani/medtranslate/internal/cache"
	"github.com/nikhilbhutani/medtranslate/internal/config"
	"github.com/nikhilbhutani/medtranslate/internal/credential"
	"github.com/nikhilbhutani/medtranslate/internal/database"
	"github.com/nikhilbhutani/medtranslate/internal/llm"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/stt"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/tts"
	"github.com/nikhilbhutani/medtranslate/internal/pipeline"
	"github.com/nikhilbhutani/medtranslate/internal/session"
	"github.com/nikhilbhutani/medtranslate/internal/translate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	translator, err := translate.New(llm.NewGateway(cfg.LLM), cfg.LLM.DefaultProvider, cfg.Translate)
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Credentials live in postgres; nothing works without it
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	creds := credential.NewStore(db, cfg.Auth.BcryptCost)
	if err := creds.EnsureSchema(ctx); err != nil {
		slog.Error("credential schema setup failed", "error", err)
		os.Exit(1)
	}

	health := map[string]handlers.Pinger{"database": db}

	// Sessions go to redis when it is reachable, otherwise stay in process
	var sessions session.Store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, keeping sessions in memory", "error", err)
		sessions = session.NewMemoryStore(cfg.Auth.SessionTTL)
	} else {
		// a full run holds the lock across all three stages
		lockTTL := 3*cfg.Pipeline.StageTimeout + 30*time.Second
		sessions = session.NewRedisStore(cache.NewCache(rdb, "medtranslate:"), cfg.Auth.SessionTTL, lockTTL)
		health["redis"] = sessions
	}

	var transcriber stt.STTProvider
	switch cfg.STT.Backend {
	case "local":
		transcriber = stt.NewLocalSTT(stt.LocalSTTConfig{
			BaseURL: cfg.STT.LocalBaseURL,
			TempDir: cfg.Pipeline.TempDir,
		})
	default:
		transcriber = stt.NewOpenAISTT(stt.OpenAISTTConfig{
			APIKey:  cfg.STT.OpenAIKey,
			BaseURL: cfg.STT.OpenAIBaseURL,
			Model:   cfg.STT.OpenAIModel,
			TempDir: cfg.Pipeline.TempDir,
		})
	}

	synthesizer := tts.NewOpenAITTS(tts.OpenAITTSConfig{
		APIKey:  cfg.TTS.OpenAIKey,
		BaseURL: cfg.TTS.OpenAIBaseURL,
		Model:   cfg.TTS.OpenAIModel,
		Voice:   cfg.TTS.Voice,
	})

	orch := pipeline.New(transcriber, translator, synthesizer, pipeline.Config{
		StageTimeout: cfg.Pipeline.StageTimeout,
		Prompt:       cfg.STT.Prompt,
	})

	// Setup router
	router := api.NewRouter(cfg, api.Deps{
		Credentials:  creds,
		Sessions:     sessions,
		JWT:          auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		Orchestrator: orch,
		Transcriber:  transcriber,
		Translator:   translator,
		Synthesizer:  synthesizer,
		Languages:    translator,
		Health:       health,
	})
	handler := router.Setup()

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     handler,
		ReadTimeout: 60 * time.Second,
		// long enough for transcribe, translate and speak back to back
		WriteTimeout: 3*cfg.Pipeline.StageTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "stt_backend", cfg.STT.Backend, "llm_provider", cfg.LLM.DefaultProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
