// Package mapsync keeps a map viewport's station set in sync with the
// station sources: debounced viewport refetches, cancellation of superseded
// fetches, and a display that favors the last good data over empty flashes.
package mapsync

import (
	"context"
	"time"

	"github.com/autoplaza/autoplaza/internal/geolocation"
	"github.com/autoplaza/autoplaza/internal/station"
)

// Generation identifies a load. Only equality is meaningful.
type Generation uint64

// GeodataSource fetches third-party stations. It must return promptly once
// ctx is canceled.
type GeodataSource interface {
	FetchStations(ctx context.Context, q station.Query) ([]station.Feature, error)
}

// StationStore lists every first-party station.
type StationStore interface {
	FetchAll(ctx context.Context) ([]*station.Record, error)
}

// MapSurface is the map the controller feeds.
type MapSurface interface {
	CurrentBounds() station.BoundingBox
	FlyTo(lat, lon float64)
}

// Geolocator resolves the user's position once.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts geolocation.Options) (geolocation.Position, error)
}

// Notifier receives user-facing messages.
type Notifier interface {
	Notify(t Toast)
}

// FreshnessSource is a GeodataSource that reports when it answered from a
// stale cache entry because the provider failed.
type FreshnessSource interface {
	Fetch(ctx context.Context, q station.Query) (station.Fetched, error)
}

// FlagReader reads boolean feature flags.
type FlagReader interface {
	IsEnabled(ctx context.Context, key string) bool
}

// ToastKind classifies a user-facing message.
type ToastKind string

// Toast kinds.
const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is a user-facing message.
type Toast struct {
	Kind    ToastKind
	Message string
	At      time.Time
}

// Viewport is the map camera after a pan or zoom ends.
type Viewport struct {
	CenterLat float64
	CenterLon float64
	Zoom      float64
	Bounds    station.BoundingBox
}

// Status is how a load ended.
type Status string

// Load statuses.
const (
	// StatusApplied means the result reached the stabilizer.
	StatusApplied Status = "applied"

	// StatusStale means a newer load started first; the result was discarded.
	StatusStale Status = "stale"

	// StatusCanceled means the caller or controller canceled the load.
	StatusCanceled Status = "canceled"

	// StatusFailed means the geodata source failed.
	StatusFailed Status = "failed"
)

// Outcome describes one finished load.
type Outcome struct {
	Generation Generation
	Query      station.Query
	Status     Status

	// Decision is set when Status is StatusApplied.
	Decision Decision

	// Count is the number of features the load produced.
	Count int

	// Stale is set when the geodata part came from a stale fallback.
	Stale bool
}

// Stats counts load events over the controller's lifetime.
type Stats struct {
	LoadsStarted    int
	Superseded      int
	StaleDiscarded  int
	Canceled        int
	Applied         int
	EmptySuppressed int
	Failures        int
	StaleServed     int
}

// State is a point-in-time copy of the controller.
type State struct {
	Generation      Generation
	Loading         bool
	AutoSync        bool
	PendingSearch   bool
	Viewport        *Viewport
	CandidateBounds *station.BoundingBox

	// Markers is the displayed set in fetch order; List is custom stations first.
	Markers []station.Feature
	List    []station.Feature

	HasLoaded   bool
	LastQuery   *station.Query
	LastUpdated *time.Time
	Error       string

	// Stale is set while the displayed set came from a stale geodata fallback.
	Stale bool
	Stats Stats
}
