package station

import (
	"sort"
)

// SyntheticIDOffset keeps first-party ids clear of plausible third-party ids.
const SyntheticIDOffset = 1_000_000

// SyntheticID derives the numeric marker id of a first-party station from its
// persistent id. The id is only used for marker bookkeeping and UI keys.
func SyntheticID(persistentID string) int64 {
	var h int32
	for _, r := range persistentID {
		h = 31*h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v + SyntheticIDOffset
}

// FeatureFromRecord converts a first-party record into the feature shape used
// for third-party stations. It returns false when the record has no position.
func FeatureFromRecord(r *Record) (Feature, bool) {
	if r == nil || !r.HasCoordinates() {
		return Feature{}, false
	}

	connector := Connector{
		Type:     r.PlugType,
		Quantity: 1,
	}
	if r.PowerKW > 0 {
		power := r.PowerKW
		connector.PowerKW = &power
	}

	return Feature{
		ID:  SyntheticID(r.ID),
		Lat: *r.Lat,
		Lon: *r.Lon,
		Properties: Properties{
			Title:           r.Address,
			AddressLine:     r.Address,
			Operator:        deref(r.Operator),
			UsageCost:       deref(r.Pricing),
			MapURL:          deref(r.MapURL),
			Connections:     []Connector{connector},
			IsCustomStation: true,
		},
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Result is one merged station set. Markers and List are two views over the
// same canonical slice.
type Result struct {
	features []Feature
	stale    bool
}

// AsStale returns r marked as built from a stale geodata fallback.
func (r Result) AsStale() Result {
	r.stale = true
	return r
}

// Stale reports whether the third-party part came from a stale fallback.
func (r Result) Stale() bool {
	return r.stale
}

// NewResult wraps features in fetch order.
func NewResult(features []Feature) Result {
	return Result{features: features}
}

// Merge appends the placeable first-party records after the third-party
// features, preserving the order of both.
func Merge(thirdParty []Feature, records []*Record) Result {
	merged := make([]Feature, 0, len(thirdParty)+len(records))
	merged = append(merged, thirdParty...)
	for _, r := range records {
		if f, ok := FeatureFromRecord(r); ok {
			merged = append(merged, f)
		}
	}
	return Result{features: merged}
}

// Len returns the number of features.
func (r Result) Len() int {
	return len(r.features)
}

// IsEmpty reports whether the result holds no features.
func (r Result) IsEmpty() bool {
	return len(r.features) == 0
}

// Markers returns the features in fetch order, for map markers.
func (r Result) Markers() []Feature {
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

// List returns the features with first-party stations first, for the list
// panel. Relative order within each group is kept.
func (r Result) List() []Feature {
	out := r.Markers()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Properties.IsCustomStation && !out[j].Properties.IsCustomStation
	})
	return out
}

// CustomCount returns the number of first-party features.
func (r Result) CustomCount() int {
	n := 0
	for _, f := range r.features {
		if f.Properties.IsCustomStation {
			n++
		}
	}
	return n
}
