package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/station"
)

// Refresher rewrites the cached stations of one query from the upstream.
type Refresher interface {
	Refresh(ctx context.Context, q station.Query) (int, error)
}

// RefreshJob warms the shared station cache.
type RefreshJob struct {
	config    RefreshConfig
	logger    zerolog.Logger
	refresher Refresher

	// Metrics
	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	StationsCached    int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Logger    zerolog.Logger
	Refresher Refresher
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if len(config.Targets) == 0 && !config.RefreshCountry {
		config = DefaultRefreshConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &RefreshJob{
		config:    config,
		logger:    cfg.Logger,
		refresher: cfg.Refresher,
		metrics:   &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TotalQueries int
	Successful   int
	Failed       int
	Stations     int
	Errors       []RefreshError
}

// RefreshError represents an error during refresh.
type RefreshError struct {
	Query string
	Error string
}

// Run executes the refresh job for all configured queries.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	queries := j.config.Queries()
	result := &RefreshResult{
		StartTime:    startTime,
		TotalQueries: len(queries),
	}

	j.logger.Info().
		Int("total_queries", result.TotalQueries).
		Int("concurrency", j.config.Concurrency).
		Msg("starting station cache refresh job")

	// Create work channels
	queryChan := make(chan station.Query, len(queries))
	resultsChan := make(chan queryResult, len(queries))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, queryChan, resultsChan)
		}()
	}

	// Send queries to workers
	for _, q := range queries {
		queryChan <- q
	}
	close(queryChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for qr := range resultsChan {
		if qr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{
				Query: qr.query.Key(),
				Error: qr.err.Error(),
			})
			continue
		}
		result.Successful++
		result.Stations += qr.count
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	// Update metrics
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("stations", result.Stations).
		Msg("station cache refresh job completed")

	return result
}

// Probe refreshes a single query, for connectivity checks.
func (j *RefreshJob) Probe(ctx context.Context, q station.Query) error {
	refreshCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.refresher.Refresh(refreshCtx, q)
	return err
}

type queryResult struct {
	query station.Query
	count int
	err   error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, queries <-chan station.Query, results chan<- queryResult) {
	for q := range queries {
		select {
		case <-ctx.Done():
			results <- queryResult{query: q, err: ctx.Err()}
		default:
			results <- j.refreshQuery(ctx, q)
		}
	}
}

func (j *RefreshJob) refreshQuery(ctx context.Context, q station.Query) queryResult {
	// Create timeout context for this query
	queryCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	n, err := j.refresher.Refresh(queryCtx, q)
	if err != nil {
		j.logger.Warn().Err(err).Str("query", q.Key()).Msg("station cache refresh failed")
		return queryResult{query: q, err: err}
	}

	j.logger.Debug().Str("query", q.Key()).Int("stations", n).Msg("station cache refreshed")
	return queryResult{query: q, count: n}
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.StationsCached += int64(result.Stations)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		StationsCached:      j.metrics.StationsCached,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"stations_cached":       m.StationsCached,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
