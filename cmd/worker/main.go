// Package main provides the entrypoint for the AutoPlaza station cache worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/middleware"
	"github.com/autoplaza/autoplaza/internal/api/response"
	"github.com/autoplaza/autoplaza/internal/cache"
	"github.com/autoplaza/autoplaza/internal/config"
	"github.com/autoplaza/autoplaza/internal/provider/resilience"
	"github.com/autoplaza/autoplaza/internal/station"
	"github.com/autoplaza/autoplaza/internal/station/openchargemap"
	"github.com/autoplaza/autoplaza/internal/telemetry"
	"github.com/autoplaza/autoplaza/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "autoplaza-worker"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting AutoPlaza worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if shutdownErr := tp.Shutdown(flushCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := middleware.NewProviderMetrics(openchargemap.ProviderName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	// The worker warms the cache the API reads, so it needs the shared store.
	if cfg.Redis.Addr == "" {
		log.Fatal().Msg("REDIS_ADDR is required for the worker")
	}
	redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer func() { _ = redisClient.Close() }()

	registry := resilience.NewRegistry(resilience.WithLogger(log))
	source := station.NewCachedSource(station.CachedSourceConfig{
		Source: openchargemap.NewClient(openchargemap.ClientConfig{
			BaseURL:     cfg.OpenChargeMap.BaseURL,
			APIKey:      cfg.OpenChargeMap.APIKey,
			CountryCode: cfg.OpenChargeMap.CountryCode,
			MaxResults:  cfg.OpenChargeMap.MaxResults,
			Registry:    registry,
			Timeout:     cfg.OpenChargeMap.Timeout,
			Logger:      log,
		}),
		Cache:           cache.NewRedisStore(redisClient, "autoplaza:"),
		Logger:          log,
		TTL:             cfg.Redis.TTL,
		StaleIfErrorTTL: cfg.Redis.StaleTTL,
		Name:            openchargemap.ProviderName,
		Metrics:         providerMetrics,
	})

	refreshConfig := worker.DefaultRefreshConfig()
	if cfg.Worker.TargetsFile != "" {
		refreshConfig, err = worker.LoadRefreshConfig(cfg.Worker.TargetsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load refresh targets")
		}
	}
	refreshConfig.Concurrency = cfg.Worker.Concurrency
	refreshConfig.Timeout = cfg.Worker.Timeout

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    refreshConfig,
		Logger:    log,
		Refresher: source,
	})
	log.Info().Int("queries", refreshConfig.TotalQueries()).Msg("refresh job configured")

	// Health endpoint for Cloud Run
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !registry.Healthy() {
			status = http.StatusServiceUnavailable
		}
		response.JSON(w, r, status, map[string]interface{}{
			"status":  http.StatusText(status),
			"version": Version,
			"refresh": refreshJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start worker loop
	if cfg.Worker.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.ProjectID,
			SubscriptionName: cfg.Worker.SubscriptionName,
			RefreshJob:       refreshJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub receive stopped")
			}
		}()
	} else {
		log.Warn().Dur("interval", cfg.Worker.Interval).Msg("GCP_PROJECT_ID not set - refreshing on a timer")
		go runPeriodic(ctx, refreshJob, cfg.Worker.Interval)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func runPeriodic(ctx context.Context, job *worker.RefreshJob, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job.Run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
