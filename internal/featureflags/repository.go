package featureflags

import (
	"context"
	"errors"
)

var (
	// ErrFlagNotFound is returned when no override exists for a key.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrUnknownFlag is returned for keys that are not well-known flags.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidValue is returned when a value has the wrong type or range.
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Repository stores flag overrides. A key without an override evaluates to
// its entry in DefaultFlags.
type Repository interface {
	// GetFlag returns the override for key, or ErrFlagNotFound.
	GetFlag(ctx context.Context, key string) (*Flag, error)

	// GetAllFlags returns every override keyed by flag key.
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags writes all overrides or none.
	SetFlags(ctx context.Context, flags []*Flag) error

	// ResetFlag removes the override for key, or returns ErrFlagNotFound.
	ResetFlag(ctx context.Context, key string) error
}
