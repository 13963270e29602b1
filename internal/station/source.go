package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/cache"
)

// Source fetches third-party stations for a query.
type Source interface {
	FetchStations(ctx context.Context, q Query) ([]Feature, error)
}

// Variant is implemented by sources whose results depend on settings beyond
// the query, such as a result cap. Cache entries are keyed by the variant.
type Variant interface {
	Variant(ctx context.Context) string
}

// Fetched is a geodata answer and where it came from.
type Fetched struct {
	Features []Feature

	// Stale is set when the upstream failed and Features came from the
	// stale-if-error entry. Cause holds the upstream error.
	Stale bool
	Cause error
}

// SourceMetrics records upstream calls and cache lookups. Optional.
type SourceMetrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
	RecordStaleServe(provider, operation string)
}

// CachedSourceConfig holds configuration for the cached geodata source.
type CachedSourceConfig struct {
	// Source is the upstream geodata provider.
	Source Source

	// Cache stores encoded feature lists.
	Cache cache.Store

	// Logger for cache operations.
	Logger zerolog.Logger

	// TTL is how long a cached result is served without refetching (default: 5 minutes).
	TTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration

	// Name labels metrics (default: "geodata").
	Name string

	// Metrics records upstream calls and cache lookups. Optional.
	Metrics SourceMetrics
}

// CachedSource decorates a Source with a shared response cache. A fresh entry
// is served directly. When the upstream fails, a stale entry is served instead.
type CachedSource struct {
	source          Source
	cache           cache.Store
	logger          zerolog.Logger
	ttl             time.Duration
	staleIfErrorTTL time.Duration
	name            string
	metrics         SourceMetrics
}

// NewCachedSource creates a cached geodata source.
func NewCachedSource(cfg CachedSourceConfig) *CachedSource {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}

	name := cfg.Name
	if name == "" {
		name = "geodata"
	}

	return &CachedSource{
		source:          cfg.Source,
		cache:           cfg.Cache,
		logger:          cfg.Logger,
		ttl:             ttl,
		staleIfErrorTTL: staleIfErrorTTL,
		name:            name,
		metrics:         cfg.Metrics,
	}
}

func (s *CachedSource) key(ctx context.Context, kind string, q Query) string {
	key := "stations:" + kind + ":" + q.Key()
	if v, ok := s.source.(Variant); ok {
		if variant := v.Variant(ctx); variant != "" {
			key += ":" + variant
		}
	}
	return key
}

func (s *CachedSource) freshKey(ctx context.Context, q Query) string { return s.key(ctx, "fresh", q) }
func (s *CachedSource) staleKey(ctx context.Context, q Query) string { return s.key(ctx, "stale", q) }

// FetchStations returns the stations for q, from cache when possible.
func (s *CachedSource) FetchStations(ctx context.Context, q Query) ([]Feature, error) {
	fetched, err := s.Fetch(ctx, q)
	return fetched.Features, err
}

// Fetch is FetchStations that also reports whether the answer is a stale
// fallback for a failed upstream call.
func (s *CachedSource) Fetch(ctx context.Context, q Query) (Fetched, error) {
	if features, ok := s.lookup(ctx, s.freshKey(ctx, q)); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit(s.name, string(q.Mode))
		}
		return Fetched{Features: features}, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(s.name, string(q.Mode))
	}

	features, err := s.fetch(ctx, q)
	if err != nil {
		// Canceled callers get no fallback.
		if ctx.Err() != nil {
			return Fetched{}, err
		}

		if stale, ok := s.lookup(ctx, s.staleKey(ctx, q)); ok {
			if s.metrics != nil {
				s.metrics.RecordStaleServe(s.name, string(q.Mode))
			}
			s.logger.Warn().
				Err(err).
				Str("query", q.Key()).
				Int("count", len(stale)).
				Msg("serving stale station data due to provider error")
			return Fetched{Features: stale, Stale: true, Cause: err}, nil
		}
		return Fetched{}, err
	}

	s.store(ctx, q, features)
	return Fetched{Features: features}, nil
}

// Refresh fetches q from the upstream and rewrites both cache entries.
func (s *CachedSource) Refresh(ctx context.Context, q Query) (int, error) {
	features, err := s.fetch(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("refresh %s: %w", q.Key(), err)
	}
	s.store(ctx, q, features)
	return len(features), nil
}

// Invalidate drops the fresh entry for q, keeping the stale fallback.
func (s *CachedSource) Invalidate(ctx context.Context, q Query) error {
	return s.cache.Delete(ctx, s.freshKey(ctx, q))
}

func (s *CachedSource) fetch(ctx context.Context, q Query) ([]Feature, error) {
	start := time.Now()
	features, err := s.source.FetchStations(ctx, q)
	if s.metrics != nil {
		s.metrics.RecordRequest(s.name, string(q.Mode), time.Since(start), err)
	}
	return features, err
}

func (s *CachedSource) lookup(ctx context.Context, key string) ([]Feature, bool) {
	b, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("station cache read failed")
		}
		return nil, false
	}

	var features []Feature
	if err := json.Unmarshal(b, &features); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable station cache entry")
		return nil, false
	}
	return features, true
}

func (s *CachedSource) store(ctx context.Context, q Query, features []Feature) {
	if features == nil {
		features = []Feature{}
	}
	b, err := json.Marshal(features)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode station cache entry")
		return
	}

	if err := s.cache.Set(ctx, s.freshKey(ctx, q), b, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("query", q.Key()).Msg("station cache write failed")
		return
	}
	if err := s.cache.Set(ctx, s.staleKey(ctx, q), b, s.staleIfErrorTTL); err != nil {
		s.logger.Warn().Err(err).Str("query", q.Key()).Msg("station cache write failed")
	}
}

// Ensure CachedSource implements Source interface.
var _ Source = (*CachedSource)(nil)
