// Package api provides the HTTP API for AutoPlaza.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/handler"
	"github.com/autoplaza/autoplaza/internal/api/middleware"
	"github.com/autoplaza/autoplaza/internal/auth"
	"github.com/autoplaza/autoplaza/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	ServiceName    string
	Metrics        *middleware.Metrics
	AllowedOrigins []string

	// RequireTLS rejects plain HTTP forwarded by a load balancer.
	RequireTLS bool

	// TokenValidator authenticates admin requests.
	TokenValidator middleware.TokenValidator

	Stations           handler.StationFetcher
	Sessions           handler.SessionStore
	CustomStations     handler.CustomStationService
	FeatureFlagService handler.FlagService

	// Subsystems are pinged by the readiness and status endpoints.
	Subsystems map[string]handler.Pinger
	Registry   *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "autoplaza-api"
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(cors.Handler(cors.Options{       // Browser map clients
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // Reject non-JSON bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Subsystems: cfg.Subsystems,
		Registry:   cfg.Registry,
		Sessions:   cfg.Sessions,
	})
	stationHandler := handler.NewStationHandler(cfg.Stations, cfg.Logger)
	mapSessionHandler := handler.NewMapSessionHandler(cfg.Sessions, cfg.Logger)
	customStationHandler := handler.NewCustomStationHandler(cfg.CustomStations, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.TokenValidator)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	// Create rate limit middleware for different endpoint categories
	viewportRateLimit := middleware.RateLimitByIP(middleware.ViewportRateLimit)    // 60 req/min per IP
	sessionRateLimit := middleware.RateLimitBySession(middleware.SessionRateLimit) // 300 req/min per session

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Stateless station query - hits geodata on a cache miss
		r.With(viewportRateLimit).Get("/stations", stationHandler.ListStations)

		// Map sessions (public)
		r.Route("/map/sessions", func(r chi.Router) {
			r.With(viewportRateLimit).Post("/", mapSessionHandler.CreateSession)
			r.Route("/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
				r.Use(sessionRateLimit)
				r.Get("/", mapSessionHandler.GetSession)
				r.Delete("/", mapSessionHandler.DeleteSession)
				r.Post("/viewport", mapSessionHandler.MoveViewport)
				r.Put("/auto-sync", mapSessionHandler.SetAutoSync)
				r.Post("/search-area", mapSessionHandler.SearchArea)
				r.Post("/retry", mapSessionHandler.Retry)
				r.Post("/locate", mapSessionHandler.Locate)
				r.Get("/ws", mapSessionHandler.StreamSession)
			})
		})

		// Admin endpoints (authenticated, admin role) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Use(middleware.RateLimitByUser(middleware.AdminRateLimit)) // 100 req/min per user

			// First-party stations
			r.Route("/custom-stations", func(r chi.Router) {
				r.Get("/", customStationHandler.ListCustomStations)
				r.Post("/", customStationHandler.CreateCustomStation)
				r.Route("/{stationId}", func(r chi.Router) {
					r.Get("/", customStationHandler.GetCustomStation)
					r.Put("/", customStationHandler.UpdateCustomStation)
					r.Delete("/", customStationHandler.DeleteCustomStation)
				})
			})

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				r.Delete("/{flagKey}", featureFlagsHandler.ResetFeatureFlag)
			})
		})
	})

	return r
}
