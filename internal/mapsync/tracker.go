package mapsync

import (
	"context"
	"errors"

	"github.com/autoplaza/autoplaza/internal/geolocation"
	"github.com/autoplaza/autoplaza/internal/station"
)

// LocateSuccessMessage is shown after the map was centered on the user.
const LocateSuccessMessage = "Map centered on your location."

// MoveEnd records the viewport after a pan or zoom ends. With auto-sync on it
// (re)starts the debounce timer; with auto-sync off it marks a pending search.
func (c *Controller) MoveEnd(vp Viewport) error {
	if err := vp.Bounds.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.viewport = &vp
	box := vp.Bounds
	c.candidate = &box

	if c.autoSync {
		c.scheduleLocked(box)
	} else {
		c.pendingSearch = true
	}
	c.mu.Unlock()

	c.changed()
	return nil
}

// SetAutoSync toggles auto-sync. Turning it off stops a pending debounce;
// turning it on while a search is pending schedules a debounced load over the
// candidate bounds.
func (c *Controller) SetAutoSync(enabled bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.autoSync == enabled {
		c.mu.Unlock()
		return nil
	}

	c.autoSync = enabled
	if !enabled {
		c.stopTimerLocked()
	} else if c.pendingSearch {
		c.pendingSearch = false
		if c.candidate != nil {
			c.scheduleLocked(*c.candidate)
		}
	}
	c.mu.Unlock()

	c.changed()
	return nil
}

// SearchArea loads the candidate bounds immediately, or the map's current
// bounds when no move was tracked. It is only available with auto-sync off.
func (c *Controller) SearchArea(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	if c.autoSync {
		c.mu.Unlock()
		return Outcome{}, ErrAutoSyncEnabled
	}

	var box station.BoundingBox
	hasCandidate := c.candidate != nil
	if hasCandidate {
		box = *c.candidate
	}
	c.stopTimerLocked()
	c.pendingSearch = false
	c.mu.Unlock()

	if !hasCandidate {
		box = c.surface.CurrentBounds()
	}

	return c.Load(ctx, station.BoundsQuery(box))
}

// Locate asks for the user's position once and centers the map on it.
// Failures are reported to the notifier and returned; there is no retry.
func (c *Controller) Locate(ctx context.Context, opts geolocation.Options) (geolocation.Position, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return geolocation.Position{}, ErrClosed
	}

	if c.geolocator == nil {
		c.notify(ToastError, geolocation.Message(ErrNoGeolocator))
		return geolocation.Position{}, ErrNoGeolocator
	}

	opts.HighAccuracy = true
	if opts.Timeout <= 0 || opts.Timeout > c.locateTO {
		opts.Timeout = c.locateTO
	}

	locateCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pos, err := c.geolocator.CurrentPosition(locateCtx, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, geolocation.ErrTimeout) {
			err = errors.Join(geolocation.ErrTimeout, err)
		}
		// Nobody is left to show a toast to.
		if ctx.Err() == nil {
			c.notify(ToastError, geolocation.Message(err))
		}
		c.logger.Info().Err(err).Msg("locate failed")
		return geolocation.Position{}, err
	}

	c.surface.FlyTo(pos.Lat, pos.Lon)
	c.notify(ToastSuccess, LocateSuccessMessage)
	c.changed()
	return pos, nil
}

// scheduleLocked restarts the debounce timer for box. c.mu must be held.
func (c *Controller) scheduleLocked(box station.BoundingBox) {
	c.stopTimerLocked()

	c.timerSeq++
	seq := c.timerSeq
	c.wg.Add(1)
	c.timer = c.clock.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.fire(seq, box)
	})
}

// stopTimerLocked cancels a pending debounce. c.mu must be held.
func (c *Controller) stopTimerLocked() {
	if c.timer == nil {
		return
	}
	if c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
	c.timerSeq++
}

func (c *Controller) fire(seq uint64, box station.BoundingBox) {
	c.mu.Lock()
	if c.closed || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_, _ = c.Load(c.ctx, station.BoundsQuery(box)) //nolint:errcheck // surfaced through state
}
