// Package main provides the entrypoint for the AutoPlaza API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api"
	"github.com/autoplaza/autoplaza/internal/api/handler"
	"github.com/autoplaza/autoplaza/internal/api/middleware"
	"github.com/autoplaza/autoplaza/internal/auth"
	"github.com/autoplaza/autoplaza/internal/cache"
	"github.com/autoplaza/autoplaza/internal/config"
	"github.com/autoplaza/autoplaza/internal/database"
	"github.com/autoplaza/autoplaza/internal/featureflags"
	"github.com/autoplaza/autoplaza/internal/geolocation/ipapi"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/provider/resilience"
	"github.com/autoplaza/autoplaza/internal/station"
	"github.com/autoplaza/autoplaza/internal/station/openchargemap"
	"github.com/autoplaza/autoplaza/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName = "autoplaza-api"
	audience    = "autoplaza-api"
)

func main() {
	issueToken := flag.String("issue-token", "", "print an access token for the given subject and exit")
	tokenRole := flag.String("role", auth.RoleAdmin, "role claim for -issue-token")
	tokenTTL := flag.Duration("ttl", auth.AccessTokenExpiry, "lifetime for -issue-token")
	flag.Parse()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	jwtSigningKey := cfg.Auth.JWTSigningKey
	if jwtSigningKey == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("JWT_SIGNING_KEY is required in production")
		}
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     cfg.Auth.JWTIssuer,
		Audience:   audience,
	})

	if *issueToken != "" {
		token, expiresAt, tokenErr := jwtService.GenerateAccessToken(auth.Principal{ID: *issueToken, Role: *tokenRole}, *tokenTTL)
		if tokenErr != nil {
			log.Fatal().Err(tokenErr).Msg("failed to issue token")
		}
		fmt.Println(token)
		log.Info().Time("expires_at", expiresAt).Str("role", *tokenRole).Msg("token issued")
		return
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting AutoPlaza API")

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := middleware.NewProviderMetrics(openchargemap.ProviderName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}
	mapMetrics, err := mapsync.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize map metrics")
	}

	subsystems := make(map[string]handler.Pinger)

	// First-party stores
	var (
		stationRepo station.Repository
		ffRepo      featureflags.Repository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		dbConfig := database.FromConfig(cfg.Storage.Postgres)
		pool, dbErr := database.Connect(ctx, dbConfig)
		if dbErr != nil {
			log.Fatal().Err(dbErr).Str("target", dbConfig.Redacted()).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().Str("target", dbConfig.Redacted()).Msg("database connected")

		if cfg.Storage.Postgres.AutoMigrate {
			if dbErr = database.EnsureSchema(ctx, pool); dbErr != nil {
				log.Fatal().Err(dbErr).Msg("failed to apply database schema")
			}
		}

		stationRepo = station.NewPostgresRepository(pool)
		ffRepo = featureflags.NewPostgresRepository(pool)
		subsystems["database"] = handler.PingFunc(pool.Ping)
	default:
		log.Warn().Msg("using in-memory storage - custom stations and flags are not persisted")
		stationRepo = station.NewInMemoryRepository()
		ffRepo = featureflags.NewInMemoryRepository()
	}

	// Geodata cache
	var geodataCache cache.Store
	if cfg.Redis.Addr != "" {
		redisClient, redisErr := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if redisErr != nil {
			log.Fatal().Err(redisErr).Msg("failed to connect to redis")
		}
		defer func() { _ = redisClient.Close() }()
		geodataCache = cache.NewRedisStore(redisClient, "autoplaza:")
		subsystems["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	} else {
		geodataCache = cache.NewMemoryStore()
		log.Warn().Msg("REDIS_ADDR not set - geodata cache is per process")
	}

	// Feature flags
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: ffRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	stationService := station.NewService(station.ServiceConfig{
		Repository: stationRepo,
		Logger:     log,
	})

	// Providers
	registry := resilience.NewRegistry(resilience.WithLogger(log))

	ocmClient := openchargemap.NewClient(openchargemap.ClientConfig{
		BaseURL:        cfg.OpenChargeMap.BaseURL,
		APIKey:         cfg.OpenChargeMap.APIKey,
		CountryCode:    cfg.OpenChargeMap.CountryCode,
		MaxResults:     cfg.OpenChargeMap.MaxResults,
		MaxResultsFunc: ffService.GeodataMaxResults,
		Registry:       registry,
		Timeout:        cfg.OpenChargeMap.Timeout,
		Logger:         log,
	})
	if cfg.OpenChargeMap.APIKey == "" {
		log.Warn().Msg("OCM_API_KEY not set - Open Charge Map requests are rate limited")
	}

	geodata := station.NewCachedSource(station.CachedSourceConfig{
		Source:          ocmClient,
		Cache:           geodataCache,
		Logger:          log,
		TTL:             cfg.Redis.TTL,
		StaleIfErrorTTL: cfg.Redis.StaleTTL,
		Name:            openchargemap.ProviderName,
		Metrics:         providerMetrics,
	})

	geolocator := ipapi.NewClient(ipapi.ClientConfig{
		BaseURL:  cfg.Geolocation.BaseURL,
		Registry: registry,
		Timeout:  cfg.Geolocation.Timeout,
	})
	log.Info().Strs("providers", registry.GetProviderNames()).Msg("providers registered")

	// Map sessions
	coord := mapsync.NewCoordinator(mapsync.CoordinatorConfig{
		Geodata: geodata,
		Store:   stationService,
		Flags:   ffService,
		Logger:  log,
	})
	manager := mapsync.NewManager(mapsync.ManagerConfig{
		Coordinator:      coord,
		Geolocator:       geolocator,
		Flags:            ffService,
		Logger:           log,
		Metrics:          mapMetrics,
		DebounceInterval: cfg.Map.DebounceInterval,
		LocateTimeout:    cfg.Map.LocateTimeout,
		IdleTTL:          cfg.Map.SessionIdleTTL,
		MaxSessions:      cfg.Map.MaxSessions,
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go manager.Run(runCtx)

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
		RequireTLS:         cfg.App.RequireTLS,
		TokenValidator:     jwtService,
		Stations:           coord,
		Sessions:           manager,
		CustomStations:     stationService,
		FeatureFlagService: ffService,
		Subsystems:         subsystems,
		Registry:           registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Close sessions first so stream clients receive a close frame.
	stopRun()
	manager.Close()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
