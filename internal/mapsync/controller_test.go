package mapsync_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoplaza/autoplaza/internal/cache"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/station"
)

var errUpstream = errors.New("upstream returned 503")

func customRecord(id string) *station.Record {
	return &station.Record{
		ID:       id,
		Address:  "Damrak 1, Amsterdam",
		PlugType: "Type 2",
		PowerKW:  22,
		Lat:      ptr(52.376),
		Lon:      ptr(4.897),
	}
}

func TestLoad_AppliesMergedResult(t *testing.T) {
	h := newHarness(t, true, func(h *harness) {
		h.store.records = []*station.Record{customRecord("cst_1")}
	})

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	call := h.geo.next(t)
	assert.Equal(t, station.ModeCountry, call.Query.Mode)

	assert.True(t, h.ctrl.Snapshot().Loading)

	call.Respond(thirdParty(1, 2))
	res := waitLoad(t, ch)

	require.NoError(t, res.err)
	assert.Equal(t, mapsync.StatusApplied, res.out.Status)
	assert.Equal(t, mapsync.DecisionDisplayed, res.out.Decision)
	assert.Equal(t, 3, res.out.Count)

	st := h.ctrl.Snapshot()
	assert.False(t, st.Loading)
	assert.True(t, st.HasLoaded)
	assert.Empty(t, st.Error)

	custom := station.SyntheticID("cst_1")
	if diff := cmp.Diff([]int64{1, 2, custom}, ids(st.Markers)); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{custom, 1, 2}, ids(st.List)); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, st.LastQuery)
	assert.Equal(t, station.ModeCountry, st.LastQuery.Mode)
	require.NotNil(t, st.LastUpdated)
	assert.Equal(t, h.clock.Now(), *st.LastUpdated)
}

func TestLoad_InvalidQuery(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.Load(context.Background(), station.Query{Mode: station.ModeBounds})
	assert.ErrorIs(t, err, station.ErrInvalidQuery)

	_, err = h.ctrl.Load(context.Background(), station.BoundsQuery(station.BoundingBox{North: 1, South: 2}))
	assert.ErrorIs(t, err, station.ErrInvalidBounds)

	h.geo.assertNoCall(t, 20*time.Millisecond)
	assert.Zero(t, h.ctrl.Snapshot().Stats.LoadsStarted)
}

func TestLoad_LastRequestWins(t *testing.T) {
	t.Run("newer resolves first", func(t *testing.T) {
		h := newHarness(t, true)
		h.geo.ignoreCancel = true

		chA := startLoad(h.ctrl, context.Background(), station.CountryQuery())
		callA := h.geo.next(t)
		chB := startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
		callB := h.geo.next(t)

		callB.Respond(thirdParty(20, 21))
		resB := waitLoad(t, chB)
		require.NoError(t, resB.err)
		assert.Equal(t, mapsync.StatusApplied, resB.out.Status)

		// The superseded load completes successfully but must not be shown.
		callA.Respond(thirdParty(10, 11, 12))
		resA := waitLoad(t, chA)
		require.NoError(t, resA.err)
		assert.Equal(t, mapsync.StatusStale, resA.out.Status)
		assert.Less(t, resA.out.Generation, resB.out.Generation)

		st := h.ctrl.Snapshot()
		assert.Equal(t, []int64{20, 21}, ids(st.Markers))
		require.NotNil(t, st.LastQuery)
		assert.Equal(t, station.ModeBounds, st.LastQuery.Mode)
		assert.Equal(t, resB.out.Generation, st.Generation)
	})

	t.Run("older resolves first", func(t *testing.T) {
		h := newHarness(t, true)
		h.geo.ignoreCancel = true

		chA := startLoad(h.ctrl, context.Background(), station.CountryQuery())
		callA := h.geo.next(t)
		chB := startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
		callB := h.geo.next(t)

		callA.Respond(thirdParty(10, 11, 12))
		resA := waitLoad(t, chA)
		assert.Equal(t, mapsync.StatusStale, resA.out.Status)

		st := h.ctrl.Snapshot()
		assert.True(t, st.Loading)
		assert.Empty(t, st.Markers)
		assert.False(t, st.HasLoaded)

		callB.Respond(thirdParty(20))
		resB := waitLoad(t, chB)
		assert.Equal(t, mapsync.StatusApplied, resB.out.Status)
		assert.Equal(t, []int64{20}, ids(h.ctrl.Snapshot().Markers))
	})
}

func TestLoad_CancelsExactlyOneInFlight(t *testing.T) {
	h := newHarness(t, true)

	chA := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	callA := h.geo.next(t)

	chB := startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
	callB := h.geo.next(t)
	assert.Error(t, callA.Ctx.Err(), "first load should be canceled")
	assert.NoError(t, callB.Ctx.Err())
	assert.Equal(t, 1, h.ctrl.Snapshot().Stats.Superseded)

	chC := startLoad(h.ctrl, context.Background(), station.BoundsQuery(utrecht))
	callC := h.geo.next(t)
	assert.Error(t, callB.Ctx.Err(), "second load should be canceled")
	assert.NoError(t, callC.Ctx.Err())
	assert.Equal(t, 2, h.ctrl.Snapshot().Stats.Superseded)

	assert.Equal(t, mapsync.StatusStale, waitLoad(t, chA).out.Status)
	assert.Equal(t, mapsync.StatusStale, waitLoad(t, chB).out.Status)

	callC.Respond(thirdParty(30))
	assert.Equal(t, mapsync.StatusApplied, waitLoad(t, chC).out.Status)

	// Nothing is in flight now, so the next load supersedes nothing.
	chD := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	h.geo.next(t).Respond(thirdParty(40))
	waitLoad(t, chD)

	st := h.ctrl.Snapshot()
	assert.Equal(t, 2, st.Stats.Superseded)
	assert.Equal(t, 2, st.Stats.StaleDiscarded)
	assert.Equal(t, 2, st.Stats.Applied)
	assert.Equal(t, 4, st.Stats.LoadsStarted)
}

func TestLoad_EmptyResultKeepsPreviousStations(t *testing.T) {
	h := newHarness(t, true)

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	h.geo.next(t).Respond(thirdParty(1, 2, 3))
	require.Equal(t, mapsync.DecisionDisplayed, waitLoad(t, ch).out.Decision)
	updated := *h.ctrl.Snapshot().LastUpdated

	h.clock.Advance(time.Minute)
	ch = startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
	h.geo.next(t).Respond(nil)
	res := waitLoad(t, ch)

	require.NoError(t, res.err)
	assert.Equal(t, mapsync.StatusApplied, res.out.Status)
	assert.Equal(t, mapsync.DecisionSuppressedEmpty, res.out.Decision)
	assert.Zero(t, res.out.Count)

	st := h.ctrl.Snapshot()
	assert.Equal(t, []int64{1, 2, 3}, ids(st.Markers))
	assert.Equal(t, []int64{1, 2, 3}, ids(st.List))
	assert.Equal(t, station.ModeCountry, st.LastQuery.Mode, "empty result must not move the last query")
	assert.Equal(t, updated, *st.LastUpdated)
	assert.Equal(t, 1, st.Stats.EmptySuppressed)
}

func TestLoad_EmptyFirstLoad(t *testing.T) {
	h := newHarness(t, true)

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	h.geo.next(t).Respond(nil)
	res := waitLoad(t, ch)
	assert.Equal(t, mapsync.DecisionEmptyFirstLoad, res.out.Decision)

	st := h.ctrl.Snapshot()
	assert.True(t, st.HasLoaded)
	assert.Empty(t, st.Markers)
	assert.Nil(t, st.LastQuery)
	assert.Nil(t, st.LastUpdated)

	ch = startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
	h.geo.next(t).Respond(nil)
	assert.Equal(t, mapsync.DecisionEmpty, waitLoad(t, ch).out.Decision)
}

func TestLoad_StoreFailureStillResolves(t *testing.T) {
	h := newHarness(t, true, func(h *harness) {
		h.store.err = errors.New("connection refused")
	})

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	h.geo.next(t).Respond(thirdParty(1, 2))
	res := waitLoad(t, ch)

	require.NoError(t, res.err)
	assert.Equal(t, mapsync.StatusApplied, res.out.Status)

	st := h.ctrl.Snapshot()
	assert.Equal(t, []int64{1, 2}, ids(st.Markers))
	assert.Empty(t, st.Error)
	assert.Empty(t, h.notifier.Toasts())
}

func TestLoad_GeodataFailure(t *testing.T) {
	h := newHarness(t, true)

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	h.geo.next(t).Respond(thirdParty(1, 2))
	waitLoad(t, ch)

	ch = startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
	h.geo.next(t).Fail(errUpstream)
	res := waitLoad(t, ch)

	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, mapsync.ErrGeodataUnavailable)
	assert.ErrorIs(t, res.err, errUpstream)
	assert.Equal(t, mapsync.StatusFailed, res.out.Status)

	st := h.ctrl.Snapshot()
	assert.Equal(t, mapsync.FailureMessage, st.Error)
	assert.False(t, st.Loading)
	assert.Equal(t, []int64{1, 2}, ids(st.Markers), "failure keeps the displayed stations")
	assert.Equal(t, 1, st.Stats.Failures)

	toasts := h.notifier.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, mapsync.ToastError, toasts[0].Kind)
	assert.Equal(t, mapsync.FailureMessage, toasts[0].Message)

	// A new load clears the error as soon as it starts.
	ch = startLoad(h.ctrl, context.Background(), station.CountryQuery())
	call := h.geo.next(t)
	assert.Empty(t, h.ctrl.Snapshot().Error)
	call.Respond(thirdParty(3))
	waitLoad(t, ch)
}

func TestLoad_StaleFallbackIsSurfaced(t *testing.T) {
	var cached *station.CachedSource
	h := newHarness(t, true, func(h *harness) {
		cached = station.NewCachedSource(station.CachedSourceConfig{
			Source: h.geo,
			Cache:  cache.NewMemoryStore(),
			Logger: zerolog.New(io.Discard),
		})
		h.source = cached
	})
	ctx := context.Background()

	ch := startLoad(h.ctrl, ctx, station.CountryQuery())
	h.geo.next(t).Respond(thirdParty(1, 2))
	first := waitLoad(t, ch)
	require.NoError(t, first.err)
	assert.False(t, first.out.Stale)
	assert.False(t, h.ctrl.Snapshot().Stale)

	require.NoError(t, cached.Invalidate(ctx, station.CountryQuery()))

	ch = startLoad(h.ctrl, ctx, station.CountryQuery())
	h.geo.next(t).Fail(errUpstream)
	res := waitLoad(t, ch)

	require.NoError(t, res.err)
	assert.Equal(t, mapsync.StatusApplied, res.out.Status)
	assert.True(t, res.out.Stale)

	st := h.ctrl.Snapshot()
	assert.True(t, st.Stale)
	assert.Equal(t, mapsync.StaleMessage, st.Error)
	assert.Equal(t, []int64{1, 2}, ids(st.Markers))
	assert.Equal(t, 1, st.Stats.StaleServed)
	assert.Zero(t, st.Stats.Failures)

	toasts := h.notifier.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, mapsync.ToastInfo, toasts[0].Kind)
	assert.Equal(t, mapsync.StaleMessage, toasts[0].Message)

	// Retry reaches the provider again and clears the notice on success.
	retried := make(chan loadResult, 1)
	go func() {
		out, err := h.ctrl.Retry(ctx)
		retried <- loadResult{out: out, err: err}
	}()
	call := h.geo.next(t)
	assert.Equal(t, station.CountryQuery().Key(), call.Query.Key())
	call.Respond(thirdParty(3))
	require.NoError(t, waitLoad(t, retried).err)

	st = h.ctrl.Snapshot()
	assert.False(t, st.Stale)
	assert.Empty(t, st.Error)
	assert.Equal(t, []int64{3}, ids(st.Markers))
}

func TestLoad_CallerCancel(t *testing.T) {
	h := newHarness(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	ch := startLoad(h.ctrl, ctx, station.CountryQuery())
	h.geo.next(t)
	cancel()

	res := waitLoad(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, mapsync.StatusCanceled, res.out.Status)

	st := h.ctrl.Snapshot()
	assert.False(t, st.Loading)
	assert.False(t, st.HasLoaded)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, st.Stats.Canceled)
	assert.Empty(t, h.notifier.Toasts())
}

func TestLoad_CanceledSuccessIsNotApplied(t *testing.T) {
	h := newHarness(t, true)
	h.geo.ignoreCancel = true

	ctx, cancel := context.WithCancel(context.Background())
	ch := startLoad(h.ctrl, ctx, station.CountryQuery())
	call := h.geo.next(t)
	cancel()
	call.Respond(thirdParty(1))

	res := waitLoad(t, ch)
	assert.Equal(t, mapsync.StatusCanceled, res.out.Status)
	assert.Empty(t, h.ctrl.Snapshot().Markers)
}

func TestRetry(t *testing.T) {
	t.Run("reuses last successful scope", func(t *testing.T) {
		h := newHarness(t, true)

		ch := startLoad(h.ctrl, context.Background(), station.BoundsQuery(amsterdam))
		h.geo.next(t).Respond(thirdParty(1))
		waitLoad(t, ch)

		ch = startLoad(h.ctrl, context.Background(), station.BoundsQuery(utrecht))
		h.geo.next(t).Fail(errUpstream)
		waitLoad(t, ch)

		done := make(chan loadResult, 1)
		go func() {
			out, err := h.ctrl.Retry(context.Background())
			done <- loadResult{out, err}
		}()
		call := h.geo.next(t)
		assert.Equal(t, station.BoundsQuery(amsterdam).Key(), call.Query.Key())
		call.Respond(thirdParty(2))

		res := waitLoad(t, done)
		require.NoError(t, res.err)
		assert.Equal(t, mapsync.StatusApplied, res.out.Status)
		assert.Empty(t, h.ctrl.Snapshot().Error)
	})

	t.Run("defaults to country", func(t *testing.T) {
		h := newHarness(t, true)

		done := make(chan loadResult, 1)
		go func() {
			out, err := h.ctrl.Retry(context.Background())
			done <- loadResult{out, err}
		}()
		call := h.geo.next(t)
		assert.Equal(t, station.ModeCountry, call.Query.Mode)
		call.Respond(thirdParty(1))
		waitLoad(t, done)
	})
}

func TestLoadAsync(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.ctrl.LoadAsync(station.CountryQuery()))
	h.geo.next(t).Respond(thirdParty(1, 2))

	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Stats.Applied == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.ctrl.LoadAsync(station.Query{Mode: "planet"}), station.ErrInvalidQuery)
}

func TestClose(t *testing.T) {
	h := newHarness(t, true)

	ch := startLoad(h.ctrl, context.Background(), station.CountryQuery())
	call := h.geo.next(t)

	require.NoError(t, h.ctrl.MoveEnd(viewport(amsterdam)))
	assert.Equal(t, 1, h.clock.Pending())

	h.ctrl.Close()

	assert.Error(t, call.Ctx.Err())
	assert.Equal(t, mapsync.StatusCanceled, waitLoad(t, ch).out.Status)
	assert.Zero(t, h.clock.Pending())
	assert.True(t, h.ctrl.Closed())

	_, err := h.ctrl.Load(context.Background(), station.CountryQuery())
	assert.ErrorIs(t, err, mapsync.ErrClosed)
	assert.ErrorIs(t, h.ctrl.MoveEnd(viewport(amsterdam)), mapsync.ErrClosed)
	assert.ErrorIs(t, h.ctrl.LoadAsync(station.CountryQuery()), mapsync.ErrClosed)

	// Idempotent.
	h.ctrl.Close()
}

func TestOnChange(t *testing.T) {
	geo := newControlledGeodata()
	changes := make(chan struct{}, 16)

	ctrl := mapsync.New(mapsync.Config{
		Coordinator: mapsync.NewCoordinator(mapsync.CoordinatorConfig{Geodata: geo}),
		Clock:       newFakeClock(),
		OnChange:    func() { changes <- struct{}{} },
	})
	t.Cleanup(ctrl.Close)

	ch := startLoad(ctrl, context.Background(), station.CountryQuery())
	geo.next(t).Respond(thirdParty(1))
	waitLoad(t, ch)

	// Once when loading starts and once when it finishes.
	assert.Len(t, changes, 2)
}
