// Package geolocation defines single-shot position lookups.
package geolocation

import (
	"errors"
	"time"
)

// Errors returned by position lookups.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 10 * time.Second

// Options controls a single position lookup.
type Options struct {
	// HighAccuracy asks for the most precise position the provider offers.
	HighAccuracy bool

	// Timeout bounds the lookup (default: DefaultTimeout).
	Timeout time.Duration

	// ClientIP is the address of the requesting browser.
	ClientIP string
}

// Position is a located point.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// AccuracyMeters is the radius of uncertainty, zero when unknown.
	AccuracyMeters float64 `json:"accuracyMeters,omitempty"`

	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// Message returns the user-facing text for a lookup failure.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied."
	case errors.Is(err, ErrTimeout):
		return "Locating you took too long. Please try again."
	default:
		return "Your location could not be determined."
	}
}
