// Package station provides charging-station models, the first-party station
// store, and the merge rules that combine it with third-party geodata.
package station

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Domain errors.
var (
	ErrStationNotFound   = errors.New("station not found")
	ErrInvalidBounds     = errors.New("invalid bounding box")
	ErrInvalidQuery      = errors.New("invalid station query")
	ErrInvalidStation    = errors.New("invalid station")
	ErrSourceUnavailable = errors.New("station source unavailable")
)

// Mode is the scope of a station fetch.
type Mode string

const (
	// ModeCountry fetches every station in the default region.
	ModeCountry Mode = "country"

	// ModeBounds fetches the stations inside a viewport rectangle.
	ModeBounds Mode = "bounds"
)

// BoundingBox is the geographic rectangle of a map viewport.
// Longitudes are not normalized; a box crossing the antimeridian is not supported.
type BoundingBox struct {
	North float64 `json:"north"`
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
}

// Validate checks that all four edges are finite and that north is not below south.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.North, b.West, b.South, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBounds)
		}
	}
	if b.North < b.South {
		return fmt.Errorf("%w: north %.6f is below south %.6f", ErrInvalidBounds, b.North, b.South)
	}
	return nil
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.North + b.South) / 2, (b.West + b.East) / 2
}

// String renders the box as "(south,west),(north,east)", the form geodata
// providers accept for rectangle queries.
func (b BoundingBox) String() string {
	return "(" + formatCoord(b.South) + "," + formatCoord(b.West) + "),(" +
		formatCoord(b.North) + "," + formatCoord(b.East) + ")"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Query records what a fetch is scoped to: the whole country, or a box.
type Query struct {
	Mode Mode         `json:"mode"`
	Box  *BoundingBox `json:"box,omitempty"`
}

// CountryQuery returns a country-scoped query.
func CountryQuery() Query {
	return Query{Mode: ModeCountry}
}

// BoundsQuery returns a bounds-scoped query over a copy of box.
func BoundsQuery(box BoundingBox) Query {
	return Query{Mode: ModeBounds, Box: &box}
}

// Validate checks that the query is well-formed.
func (q Query) Validate() error {
	switch q.Mode {
	case ModeCountry:
		return nil
	case ModeBounds:
		if q.Box == nil {
			return fmt.Errorf("%w: bounds mode requires a box", ErrInvalidQuery)
		}
		return q.Box.Validate()
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, q.Mode)
	}
}

// Key returns a stable cache key for the query.
func (q Query) Key() string {
	if q.Mode == ModeBounds && q.Box != nil {
		return string(ModeBounds) + ":" + q.Box.String()
	}
	return string(ModeCountry)
}

// Connector is a plug on a station.
type Connector struct {
	Type     string   `json:"type"`
	PowerKW  *float64 `json:"powerKw,omitempty"`
	Quantity int      `json:"quantity"`
}

// Properties holds the descriptive fields of a station feature.
type Properties struct {
	Title           string      `json:"title"`
	AddressLine     string      `json:"addressLine,omitempty"`
	Town            string      `json:"town,omitempty"`
	StateOrProvince string      `json:"stateOrProvince,omitempty"`
	Postcode        string      `json:"postcode,omitempty"`
	Country         string      `json:"country,omitempty"`
	Operator        string      `json:"operator,omitempty"`
	Status          string      `json:"status,omitempty"`
	UsageCost       string      `json:"usageCost,omitempty"`
	MapURL          string      `json:"mapUrl,omitempty"`
	Connections     []Connector `json:"connections"`
	IsCustomStation bool        `json:"isCustomStation"`
}

// Feature is a station placed on the map. Features are never mutated after a
// fetch; a new fetch yields a new slice.
type Feature struct {
	ID         int64      `json:"id"`
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Properties Properties `json:"properties"`
}

// Record is a first-party station as persisted by this application.
type Record struct {
	ID        string
	Address   string
	PlugType  string
	PowerKW   float64
	Operator  *string
	Pricing   *string
	MapURL    *string
	Lat       *float64
	Lon       *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCoordinates reports whether the record can be placed on a map.
func (r *Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}
