// Package featureflags provides feature flag management for runtime configuration.
package featureflags

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagMapAutoSyncDefault is the initial auto-sync setting of new map sessions.
	FlagMapAutoSyncDefault = "map_auto_sync_default"

	// FlagDisableCustomStations leaves first-party stations out of map loads.
	FlagDisableCustomStations = "disable_custom_stations"

	// FlagGeodataMaxResults caps the stations requested per geodata query.
	FlagGeodataMaxResults = "geodata_max_results"
)

// DefaultGeodataMaxResults is the fallback for FlagGeodataMaxResults.
const DefaultGeodataMaxResults = 500

// MaxGeodataMaxResults bounds FlagGeodataMaxResults; larger country loads
// are rejected by the upstream.
const MaxGeodataMaxResults = 5000

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`

	// UpdatedBy and Reason are set for overrides written by an admin.
	UpdatedBy string `json:"updatedBy,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil, not found, or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// StringValue returns the flag value as a string.
// Returns the default value if the flag is nil, not found, or not a string.
func (f *Flag) StringValue(defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case string:
		return v
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil, not found, or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		// JSON unmarshals numbers as float64
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// Float64Value returns the flag value as a float64.
// Returns the default value if the flag is nil, not found, or not a number.
func (f *Flag) Float64Value(defaultValue float64) float64 {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return defaultValue
	}
}

// JSONValue unmarshals the flag value into the target struct.
// Returns an error if unmarshaling fails.
func (f *Flag) JSONValue(target interface{}) error {
	if f == nil {
		return nil
	}
	data, err := json.Marshal(f.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagMapAutoSyncDefault: {
			Key:       FlagMapAutoSyncDefault,
			Value:     true,
			UpdatedAt: now,
		},
		FlagDisableCustomStations: {
			Key:       FlagDisableCustomStations,
			Value:     false,
			UpdatedAt: now,
		},
		FlagGeodataMaxResults: {
			Key:       FlagGeodataMaxResults,
			Value:     float64(DefaultGeodataMaxResults),
			UpdatedAt: now,
		},
	}
}

// IsKnown reports whether key is a well-known flag.
func IsKnown(key string) bool {
	_, ok := DefaultFlags()[key]
	return ok
}

// ValidateValue checks that value has the type key expects.
func ValidateValue(key string, value interface{}) error {
	switch key {
	case FlagMapAutoSyncDefault, FlagDisableCustomStations:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
		}
	case FlagGeodataMaxResults:
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) || n < 1 || n > MaxGeodataMaxResults {
			return fmt.Errorf("%w: %s must be an integer between 1 and %d", ErrInvalidValue, key, MaxGeodataMaxResults)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	return nil
}
