package mapsync

import "errors"

// Errors returned by the map controller and session manager.
var (
	// ErrAutoSyncEnabled is returned by SearchArea while auto-sync is on.
	ErrAutoSyncEnabled = errors.New("search area is only available when auto-sync is off")

	// ErrGeodataUnavailable wraps failures of the third-party station source.
	ErrGeodataUnavailable = errors.New("station data unavailable")

	// ErrStaleData marks a load answered from the geodata cache after the
	// provider failed.
	ErrStaleData = errors.New("showing cached station data")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("map controller closed")

	// ErrNoGeolocator is returned by Locate when no geolocator is configured.
	ErrNoGeolocator = errors.New("geolocation not configured")

	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = errors.New("map session not found")

	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many map sessions")
)
