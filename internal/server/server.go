// Package server provides the HTTP server and routing for famledger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/database"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/modules/importer"
	importerhandlers "github.com/aristath/famledger/internal/modules/importer/handlers"
	"github.com/aristath/famledger/internal/modules/records"
	recordshandlers "github.com/aristath/famledger/internal/modules/records/handlers"
	"github.com/aristath/famledger/internal/reliability"
	"github.com/aristath/famledger/internal/secrets"
)

// Version is reported by the health endpoints.
const Version = "2.0.0"

// Config holds server configuration
type Config struct {
	Log      zerolog.Logger
	Config   *config.Config
	Bus      *events.Bus
	Records  *records.Service
	Sessions *importer.Sessions
	Secrets  *secrets.Manager
	Resolver *secrets.Resolver
	Backups  *reliability.BackupService
	Offsite  *reliability.OffsiteService // nil when no offsite target is configured
	DB       *database.DB                // nil for the JSON backend
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     *config.Config
	deps    Config
	limiter *rateLimiter
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg.Config,
		deps:    cfg,
		limiter: newRateLimiter(cfg.Config.RateLimit, cfg.Config.RateBurst),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// SSE and websocket connections stay open; handlers bound their own work
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	system := NewSystemHandlers(s.cfg, s.deps.Records, s.deps.Backups, s.deps.DB, s.log)
	s.router.Get("/health", system.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event streams are long-lived: no timeout, no rate limit
		r.Group(func(r chi.Router) {
			r.Get("/events/stream", NewEventsStreamHandler(s.deps.Bus, s.log).ServeHTTP)
			r.Get("/events/ws", NewEventsSocketHandler(s.deps.Bus, s.log).ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(s.limiter.middleware)

			r.Get("/health", system.HandleHealth)
			r.Get("/system/status", system.HandleSystemStatus)

			recordshandlers.NewHandler(s.deps.Records, s.cfg.CashTag, s.log).RegisterRoutes(r)

			importerhandlers.NewHandler(s.deps.Records, s.deps.Sessions, importer.Rules{
				Members:        s.cfg.Members,
				PaymentMethods: s.cfg.PaymentMethods,
			}, s.log).RegisterRoutes(r)

			NewTokenHandlers(s.deps.Secrets, s.deps.Resolver, s.deps.Bus, s.log).RegisterRoutes(r)

			if s.deps.Backups != nil {
				NewBackupHandlers(s.deps.Backups, s.deps.Offsite, s.log).RegisterRoutes(r)
			}
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
