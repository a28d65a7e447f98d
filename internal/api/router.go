package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/nikhilbhutani/medtranslate/internal/api/handlers"
	"github.com/nikhilbhutani/medtranslate/internal/api/middleware"
	"github.com/nikhilbhutani/medtranslate/internal/auth"
	"github.com/nikhilbhutani/medtranslate/internal/config"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/stt"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/tts"
	"github.com/nikhilbhutani/medtranslate/internal/pipeline"
	"github.com/nikhilbhutani/medtranslate/internal/session"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Credentials  handlers.Credentials
	Sessions     session.Store
	JWT          *auth.JWTMiddleware
	Orchestrator *pipeline.Orchestrator
	Transcriber  stt.STTProvider
	Translator   pipeline.Translator
	Synthesizer  tts.TTSProvider
	Languages    handlers.Languages
	// Health maps a dependency name to its readiness check.
	Health map[string]handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	authH := handlers.NewAuthHandler(rt.deps.Credentials, rt.deps.Sessions, rt.deps.JWT)
	pipelineH := handlers.NewPipelineHandler(rt.deps.Orchestrator, rt.deps.Sessions, rt.deps.Languages, rt.cfg.Pipeline.MaxUploadBytes)
	proxyH := handlers.NewProxyHandler(
		rt.deps.Transcriber,
		rt.deps.Translator,
		rt.deps.Synthesizer,
		rt.deps.Languages,
		rt.cfg.STT.Prompt,
		rt.cfg.Pipeline.MaxUploadBytes,
		rt.cfg.Pipeline.StageTimeout,
	)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/languages", proxyH.Languages)

		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.LimitByIP(rt.cfg.Auth.LoginPerMin, time.Minute)).Group(func(r chi.Router) {
				r.Post("/signup", authH.Signup)
				r.Post("/login", authH.Login)
			})
			r.With(rt.deps.JWT.Authenticate).Post("/logout", authH.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.deps.JWT.Authenticate)

			r.Get("/session", pipelineH.Session)

			r.Route("/pipeline", func(r chi.Router) {
				r.Post("/transcribe", pipelineH.Transcribe)
				r.Post("/translate", pipelineH.Translate)
				r.Post("/speak", pipelineH.Speak)
				r.Post("/run", pipelineH.Run)
			})

			// Single-stage endpoints that keep no session state
			for _, p := range []string{"/transcribe", "/transcribe/"} {
				r.Post(p, proxyH.Transcribe)
			}
			for _, p := range []string{"/translate", "/translate/"} {
				r.Post(p, proxyH.Translate)
			}
			for _, p := range []string{"/speak", "/speak/"} {
				r.Get(p, proxyH.Speak)
			}
		})
	})

	return r
}
