package mapsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/autoplaza/autoplaza/internal/featureflags"
	"github.com/autoplaza/autoplaza/internal/station"
)

// CoordinatorConfig holds configuration for the fetch coordinator.
type CoordinatorConfig struct {
	// Geodata is the third-party station source. Required.
	Geodata GeodataSource

	// Store is the first-party station store. Optional.
	Store StationStore

	// Flags gates the first-party store. Optional.
	Flags FlagReader

	// Logger for fetch operations.
	Logger zerolog.Logger
}

// Coordinator runs one merged fetch over both station sources.
type Coordinator struct {
	geodata GeodataSource
	store   StationStore
	flags   FlagReader
	logger  zerolog.Logger
}

// NewCoordinator creates a fetch coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		geodata: cfg.Geodata,
		store:   cfg.Store,
		flags:   cfg.Flags,
		logger:  cfg.Logger,
	}
}

// Fetch queries both sources concurrently and merges them. A first-party
// store failure contributes an empty list; a geodata failure fails the fetch.
// A stale geodata fallback yields a result marked Stale.
func (c *Coordinator) Fetch(ctx context.Context, q station.Query) (station.Result, error) {
	if err := q.Validate(); err != nil {
		return station.Result{}, err
	}

	var (
		thirdParty []station.Feature
		stale      bool
		records    []*station.Record
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if fs, ok := c.geodata.(FreshnessSource); ok {
			fetched, err := fs.Fetch(gctx, q)
			if err != nil {
				return err
			}
			thirdParty, stale = fetched.Features, fetched.Stale
			return nil
		}

		features, err := c.geodata.FetchStations(gctx, q)
		if err != nil {
			return err
		}
		thirdParty = features
		return nil
	})

	if c.useStore(ctx) {
		g.Go(func() error {
			recs, err := c.store.FetchAll(gctx)
			if err != nil {
				if gctx.Err() == nil {
					c.logger.Warn().Err(err).Str("query", q.Key()).Msg("custom stations unavailable, continuing without them")
				}
				return nil
			}
			records = recs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return station.Result{}, ctx.Err()
		}
		return station.Result{}, fmt.Errorf("%w: %w", ErrGeodataUnavailable, err)
	}

	res := station.Merge(thirdParty, records)
	if stale {
		res = res.AsStale()
	}
	return res, nil
}

func (c *Coordinator) useStore(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	if c.flags != nil && c.flags.IsEnabled(ctx, featureflags.FlagDisableCustomStations) {
		return false
	}
	return true
}
