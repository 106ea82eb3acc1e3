// Package server provides the HTTP server and routing.
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

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/database"
	"github.com/ratewatch/ratewatch/internal/modules/alerts"
	"github.com/ratewatch/ratewatch/internal/modules/monitors"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
	"github.com/ratewatch/ratewatch/internal/modules/webhook"
	"github.com/ratewatch/ratewatch/internal/snapshot"
)

// Config holds everything the server needs to route requests.
type Config struct {
	Log      zerolog.Logger
	Cfg      *config.Config
	DB       *database.DB
	Samples  *samples.Handler
	Webhook  *webhook.Handler
	Monitors *monitors.Handler
	Alerts   *alerts.Handler
	Rates    *snapshot.Cache
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	samples  *samples.Handler
	webhook  *webhook.Handler
	monitors *monitors.Handler
	alerts   *alerts.Handler

	dex    *DexHandlers
	system *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		cfg:      cfg.Cfg,
		samples:  cfg.Samples,
		webhook:  cfg.Webhook,
		monitors: cfg.Monitors,
		alerts:   cfg.Alerts,
		dex:      NewDexHandlers(cfg.Rates, cfg.Log),
		system:   NewSystemHandlers(cfg.DB, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Cfg.Host, cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.system.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/webhook/distill", s.webhook.HandleDistill)

		r.Get("/data", s.samples.HandleGetData)
		r.Get("/data/summary", s.samples.HandleGetSummary)
		r.Get("/chart-data/{monitor_id}", s.samples.HandleGetChartData)

		r.Route("/monitors", func(r chi.Router) {
			r.Get("/", s.monitors.HandleList)
			r.Post("/", s.monitors.HandleCreate)
			r.Get("/{id}", s.monitors.HandleGet)
			r.Put("/{id}", s.monitors.HandleUpdate)
			r.Delete("/{id}", s.monitors.HandleDelete)
			r.Get("/{id}/values", s.monitors.HandleValues)
		})

		r.Route("/alert-rules", func(r chi.Router) {
			r.Get("/", s.alerts.HandleListRules)
			r.Post("/", s.alerts.HandleCreateRule)
			r.Get("/{id}", s.alerts.HandleGetRule)
			r.Put("/{id}", s.alerts.HandleUpdateRule)
			r.Delete("/{id}", s.alerts.HandleDeleteRule)
		})
		r.Get("/alerts", s.alerts.HandleListStates)

		r.Route("/notification-targets", func(r chi.Router) {
			r.Get("/", s.alerts.HandleListTargets)
			r.Post("/", s.alerts.HandleCreateTarget)
			r.Put("/{id}", s.alerts.HandleUpdateTarget)
			r.Delete("/{id}", s.alerts.HandleDeleteTarget)
		})

		r.Route("/dex", func(r chi.Router) {
			r.Get("/funding-rates", s.dex.HandleFundingRates)
			r.Get("/funding-rates/{symbol}", s.dex.HandleFundingRatesSymbol)
		})

		r.Get("/system/status", s.system.HandleStatus)
	})
}

// Router exposes the configured mux, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
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
