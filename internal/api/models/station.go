package models

import (
	"time"

	"github.com/autoplaza/autoplaza/internal/station"
)

// StationQuery echoes the scope of a station fetch.
type StationQuery struct {
	Mode   station.Mode         `json:"mode"`
	Bounds *station.BoundingBox `json:"bounds,omitempty"`
}

// StationQueryFrom converts a domain query.
func StationQueryFrom(q station.Query) StationQuery {
	out := StationQuery{Mode: q.Mode}
	if q.Box != nil {
		box := *q.Box
		out.Bounds = &box
	}
	return out
}

// StationCollection is one merged station set in both of its views.
type StationCollection struct {
	Query       StationQuery      `json:"query"`
	Count       int               `json:"count"`
	CustomCount int               `json:"customCount"`
	Markers     []station.Feature `json:"markers"`
	List        []station.Feature `json:"list"`
	FetchedAt   Timestamp         `json:"fetchedAt"`

	// Stale is set when the provider failed and cached stations were served.
	Stale bool `json:"stale,omitempty"`
}

// NewStationCollection builds the response for a merged fetch.
func NewStationCollection(q station.Query, res station.Result, fetchedAt time.Time) StationCollection {
	return StationCollection{
		Query:       StationQueryFrom(q),
		Count:       res.Len(),
		CustomCount: res.CustomCount(),
		Markers:     res.Markers(),
		List:        res.List(),
		FetchedAt:   Timestamp(fetchedAt),
		Stale:       res.Stale(),
	}
}

// CustomStation is a first-party station.
type CustomStation struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	PlugType  string    `json:"plugType"`
	PowerKW   float64   `json:"powerKw"`
	Operator  *string   `json:"operator,omitempty"`
	Pricing   *string   `json:"pricing,omitempty"`
	MapURL    *string   `json:"mapUrl,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Placeable bool      `json:"placeable"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// CustomStationFromRecord converts a stored record.
func CustomStationFromRecord(r *station.Record) CustomStation {
	return CustomStation{
		ID:        r.ID,
		Address:   r.Address,
		PlugType:  r.PlugType,
		PowerKW:   r.PowerKW,
		Operator:  r.Operator,
		Pricing:   r.Pricing,
		MapURL:    r.MapURL,
		Lat:       r.Lat,
		Lon:       r.Lon,
		Placeable: r.HasCoordinates(),
		CreatedAt: Timestamp(r.CreatedAt),
		UpdatedAt: Timestamp(r.UpdatedAt),
	}
}

// CustomStationRequest is the body of create and replace requests.
type CustomStationRequest struct {
	Address  string   `json:"address"`
	PlugType string   `json:"plugType"`
	PowerKW  float64  `json:"powerKw"`
	Operator *string  `json:"operator,omitempty"`
	Pricing  *string  `json:"pricing,omitempty"`
	MapURL   *string  `json:"mapUrl,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// ToInput converts the request to a service input.
func (r CustomStationRequest) ToInput() *station.Input {
	return &station.Input{
		Address:  r.Address,
		PlugType: r.PlugType,
		PowerKW:  r.PowerKW,
		Operator: r.Operator,
		Pricing:  r.Pricing,
		MapURL:   r.MapURL,
		Lat:      r.Lat,
		Lon:      r.Lon,
	}
}

// PagedCustomStations is one page of first-party stations.
type PagedCustomStations struct {
	Items []CustomStation   `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// FieldErrorsFrom converts station validation failures.
func FieldErrorsFrom(errs []station.FieldError) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldError{Field: e.Field, Message: e.Message})
	}
	return out
}
