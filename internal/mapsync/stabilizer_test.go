package mapsync_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/station"
)

func TestStabilizer_Apply(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nonEmpty := station.NewResult(thirdParty(1, 2))
	empty := station.NewResult(nil)

	tests := []struct {
		name        string
		history     []station.Result
		next        station.Result
		want        mapsync.Decision
		wantDisplay []int64
	}{
		{
			name:        "first load non-empty",
			next:        nonEmpty,
			want:        mapsync.DecisionDisplayed,
			wantDisplay: []int64{1, 2},
		},
		{
			name:        "first load empty",
			next:        empty,
			want:        mapsync.DecisionEmptyFirstLoad,
			wantDisplay: []int64{},
		},
		{
			name:        "empty after non-empty",
			history:     []station.Result{nonEmpty},
			next:        empty,
			want:        mapsync.DecisionSuppressedEmpty,
			wantDisplay: []int64{1, 2},
		},
		{
			name:        "empty after empty",
			history:     []station.Result{empty},
			next:        empty,
			want:        mapsync.DecisionEmpty,
			wantDisplay: []int64{},
		},
		{
			name:        "non-empty replaces previous",
			history:     []station.Result{nonEmpty},
			next:        station.NewResult(thirdParty(7)),
			want:        mapsync.DecisionDisplayed,
			wantDisplay: []int64{7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s mapsync.Stabilizer
			for _, r := range tt.history {
				s.Apply(r, station.CountryQuery(), now)
			}

			got := s.Apply(tt.next, station.BoundsQuery(amsterdam), now.Add(time.Minute))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDisplay, ids(s.Displayed().Markers()))
		})
	}
}

func TestStabilizer_RetryQuery(t *testing.T) {
	var s mapsync.Stabilizer
	assert.Equal(t, station.CountryQuery(), s.RetryQuery())

	s.Apply(station.NewResult(thirdParty(1)), station.BoundsQuery(amsterdam), time.Now())
	assert.Equal(t, station.BoundsQuery(amsterdam).Key(), s.RetryQuery().Key())

	// Empty results never move the retry scope.
	s.Apply(station.NewResult(nil), station.BoundsQuery(utrecht), time.Now())
	assert.Equal(t, station.BoundsQuery(amsterdam).Key(), s.RetryQuery().Key())
}

func TestStabilizer_FailAndClear(t *testing.T) {
	var s mapsync.Stabilizer
	s.Apply(station.NewResult(thirdParty(1)), station.CountryQuery(), time.Now())

	err := errors.New("boom")
	s.Fail(err)
	assert.Equal(t, err, s.Err())
	assert.Equal(t, 1, s.Displayed().Len())

	s.ClearError()
	assert.NoError(t, s.Err())
}

func TestStabilizer_Degrade(t *testing.T) {
	var s mapsync.Stabilizer
	s.Apply(station.NewResult(thirdParty(1, 2)).AsStale(), station.CountryQuery(), time.Now())
	s.Degrade()

	assert.ErrorIs(t, s.Err(), mapsync.ErrStaleData)
	assert.ErrorIs(t, s.Err(), mapsync.ErrGeodataUnavailable)
	assert.Equal(t, 2, s.Displayed().Len())
	assert.True(t, s.Displayed().Stale())
	assert.Equal(t, station.CountryQuery().Key(), s.RetryQuery().Key())
}
