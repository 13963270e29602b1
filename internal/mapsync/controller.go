package mapsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/station"
)

const (
	// DefaultDebounceInterval is the quiet period after the last viewport move.
	DefaultDebounceInterval = 450 * time.Millisecond

	// DefaultLocateTimeout bounds a locate request.
	DefaultLocateTimeout = 10 * time.Second
)

// Config holds configuration for a map controller.
type Config struct {
	// Coordinator runs the merged fetches. Required.
	Coordinator *Coordinator

	// Surface is the map being fed. Required for SearchArea and Locate.
	Surface MapSurface

	// Geolocator serves Locate. Optional.
	Geolocator Geolocator

	// Notifier receives user-facing messages. Optional.
	Notifier Notifier

	// Clock drives the debounce (default: RealClock).
	Clock Clock

	// Logger for controller operations.
	Logger zerolog.Logger

	// Metrics records load outcomes. Optional.
	Metrics *Metrics

	// DebounceInterval defaults to DefaultDebounceInterval.
	DebounceInterval time.Duration

	// LocateTimeout defaults to DefaultLocateTimeout.
	LocateTimeout time.Duration

	// AutoSync is the initial auto-sync setting.
	AutoSync bool

	// OnChange is called after every state change, outside the controller lock.
	OnChange func()
}

// Controller is the data-synchronization controller of one map. A single
// mutex guards the tracker, the load bookkeeping and the stabilizer; no I/O
// runs while it is held.
type Controller struct {
	coord      *Coordinator
	surface    MapSurface
	geolocator Geolocator
	notifier   Notifier
	clock      Clock
	logger     zerolog.Logger
	metrics    *Metrics
	debounce   time.Duration
	locateTO   time.Duration
	onChange   func()

	// ctx is canceled by Close. Debounced loads run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	generation     Generation
	cancelInFlight context.CancelFunc
	loading        bool

	autoSync      bool
	pendingSearch bool
	viewport      *Viewport
	candidate     *station.BoundingBox
	timer         Timer
	timerSeq      uint64

	stab  Stabilizer
	stats Stats
}

// New creates a controller. Call Close to release it.
func New(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	debounce := cfg.DebounceInterval
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}

	locateTO := cfg.LocateTimeout
	if locateTO <= 0 {
		locateTO = DefaultLocateTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		coord:      cfg.Coordinator,
		surface:    cfg.Surface,
		geolocator: cfg.Geolocator,
		notifier:   cfg.Notifier,
		clock:      clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		debounce:   debounce,
		locateTO:   locateTO,
		onChange:   cfg.OnChange,
		ctx:        ctx,
		cancel:     cancel,
		autoSync:   cfg.AutoSync,
	}
}

// Load fetches q and, if it is still the newest load when it completes, hands
// the result to the stabilizer. Starting a load cancels the one in flight.
//
// The returned error is non-nil for an invalid query, a closed controller, or
// a geodata failure (wrapping ErrGeodataUnavailable). Stale and canceled loads
// return a nil error.
func (c *Controller) Load(ctx context.Context, q station.Query) (Outcome, error) {
	if err := q.Validate(); err != nil {
		return Outcome{Query: q}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{Query: q}, ErrClosed
	}
	if c.cancelInFlight != nil {
		c.cancelInFlight()
		c.stats.Superseded++
		c.metrics.loadSuperseded()
	}
	c.generation++
	gen := c.generation

	loadCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(c.ctx, cancel)
	c.cancelInFlight = cancel

	c.stab.ClearError()
	c.loading = true
	c.stats.LoadsStarted++
	c.mu.Unlock()

	c.metrics.loadStarted(string(q.Mode))
	c.changed()

	res, err := c.coord.Fetch(loadCtx, q)
	stopOnClose()
	canceled := loadCtx.Err() != nil
	cancel()

	out := Outcome{Generation: gen, Query: q, Count: res.Len()}

	c.mu.Lock()
	if gen != c.generation {
		c.stats.StaleDiscarded++
		c.mu.Unlock()

		out.Status = StatusStale
		c.metrics.loadFinished(out)
		c.logger.Debug().Uint64("generation", uint64(gen)).Str("query", q.Key()).Msg("discarded stale station load")
		return out, nil
	}

	c.cancelInFlight = nil
	c.loading = false

	switch {
	case canceled || errors.Is(err, context.Canceled):
		c.stats.Canceled++
		c.mu.Unlock()
		out.Status = StatusCanceled

	case err != nil:
		c.stab.Fail(err)
		c.stats.Failures++
		c.mu.Unlock()
		out.Status = StatusFailed

		c.logger.Error().Err(err).Str("query", q.Key()).Msg("station load failed")
		c.notify(ToastError, FailureMessage)

	default:
		out.Status = StatusApplied
		out.Stale = res.Stale()
		out.Decision = c.stab.Apply(res, q, c.clock.Now())
		c.stats.Applied++
		if out.Decision == DecisionSuppressedEmpty {
			c.stats.EmptySuppressed++
		}
		if out.Stale {
			c.stab.Degrade()
			c.stats.StaleServed++
		}
		kept := c.stab.Displayed().Len()
		c.mu.Unlock()

		if out.Stale {
			c.logger.Warn().Str("query", q.Key()).Msg("station load answered from stale cache")
			c.notify(ToastInfo, StaleMessage)
		}

		if out.Decision == DecisionSuppressedEmpty {
			c.logger.Warn().
				Str("query", q.Key()).
				Int("kept", kept).
				Msg("empty station result suppressed, keeping previous stations")
		}
	}

	c.metrics.loadFinished(out)
	c.changed()

	if out.Status == StatusFailed {
		return out, err
	}
	return out, nil
}

// LoadAsync starts Load under the controller's own context and returns
// immediately. Close waits for it.
func (c *Controller) LoadAsync(q station.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		_, _ = c.Load(c.ctx, q) //nolint:errcheck // surfaced through state
	}()
	return nil
}

// Retry reloads the scope of the last successful load, or the country when
// nothing has loaded yet.
func (c *Controller) Retry(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	q := c.stab.RetryQuery()
	c.mu.Unlock()

	return c.Load(ctx, q)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Generation:    c.generation,
		Loading:       c.loading,
		AutoSync:      c.autoSync,
		PendingSearch: c.pendingSearch,
		Stats:         c.stats,
	}
	if c.viewport != nil {
		vp := *c.viewport
		st.Viewport = &vp
	}
	if c.candidate != nil {
		b := *c.candidate
		st.CandidateBounds = &b
	}
	c.stab.fill(&st)
	return st
}

// Close stops the debounce timer, cancels the in-flight load and waits for
// background loads to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	if c.cancelInFlight != nil {
		c.cancelInFlight()
	}
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller) notify(kind ToastKind, msg string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Toast{Kind: kind, Message: msg, At: c.clock.Now()})
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
