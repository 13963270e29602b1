package mapsync

import (
	"fmt"
	"time"

	"github.com/autoplaza/autoplaza/internal/station"
)

// Decision is what the stabilizer did with a successful result.
type Decision string

// Stabilizer decisions.
const (
	// DecisionDisplayed shows a non-empty result.
	DecisionDisplayed Decision = "displayed"

	// DecisionEmptyFirstLoad shows an empty result on the first load.
	DecisionEmptyFirstLoad Decision = "empty_first_load"

	// DecisionSuppressedEmpty keeps the last non-empty set instead of an empty result.
	DecisionSuppressedEmpty Decision = "suppressed_empty"

	// DecisionEmpty shows an empty result when nothing was ever shown.
	DecisionEmpty Decision = "empty"
)

// FailureMessage is the user-facing text for a failed load.
const FailureMessage = "Charging stations could not be loaded. Please try again."

// StaleMessage is the user-facing text when cached stations stand in for a
// failed provider call.
const StaleMessage = "Live charging station data is unavailable. Showing recently cached stations."

// Stabilizer decides what is displayed after each authoritative load.
// It is not safe for concurrent use; the controller guards it.
type Stabilizer struct {
	displayed    station.Result
	lastNonEmpty station.Result
	hasLoaded    bool
	lastQuery    *station.Query
	lastUpdated  time.Time
	errMessage   string
	lastErr      error
	stale        bool
}

// Apply records a successful result for q.
func (s *Stabilizer) Apply(res station.Result, q station.Query, now time.Time) Decision {
	if !res.IsEmpty() {
		s.displayed = res
		s.lastNonEmpty = res
		s.hasLoaded = true
		s.lastUpdated = now
		s.lastQuery = &q
		s.stale = res.Stale()
		return DecisionDisplayed
	}

	switch {
	case !s.lastNonEmpty.IsEmpty():
		s.displayed = s.lastNonEmpty
		return DecisionSuppressedEmpty
	case !s.hasLoaded:
		s.hasLoaded = true
		s.displayed = res
		s.stale = res.Stale()
		return DecisionEmptyFirstLoad
	default:
		s.displayed = res
		s.stale = res.Stale()
		return DecisionEmpty
	}
}

// Degrade records that the last applied result was a stale fallback for a
// failed provider call. The result stays displayed; the message and retry are
// offered as for a failure.
func (s *Stabilizer) Degrade() {
	s.errMessage = StaleMessage
	s.lastErr = fmt.Errorf("%w: %w", ErrStaleData, ErrGeodataUnavailable)
}

// Fail records a geodata failure. The displayed set is kept.
func (s *Stabilizer) Fail(err error) {
	s.errMessage = FailureMessage
	s.lastErr = err
}

// ClearError drops the error state when a new load starts.
func (s *Stabilizer) ClearError() {
	s.errMessage = ""
	s.lastErr = nil
}

// RetryQuery returns the scope of the last successful load, or country scope.
func (s *Stabilizer) RetryQuery() station.Query {
	if s.lastQuery == nil {
		return station.CountryQuery()
	}
	return *s.lastQuery
}

// Displayed returns the displayed set.
func (s *Stabilizer) Displayed() station.Result {
	return s.displayed
}

// Err returns the error of the last failed load, if it has not been cleared.
func (s *Stabilizer) Err() error {
	return s.lastErr
}

func (s *Stabilizer) fill(st *State) {
	st.Markers = s.displayed.Markers()
	st.List = s.displayed.List()
	st.HasLoaded = s.hasLoaded
	st.Error = s.errMessage
	st.Stale = s.stale
	if s.lastQuery != nil {
		q := *s.lastQuery
		st.LastQuery = &q
	}
	if !s.lastUpdated.IsZero() {
		t := s.lastUpdated
		st.LastUpdated = &t
	}
}
