package mapsync

import (
	"sync"
	"time"

	"github.com/autoplaza/autoplaza/internal/station"
)

const (
	maxQueuedToasts = 20

	// DefaultFlyToZoom is the zoom level of a fly-to instruction.
	DefaultFlyToZoom = 13
)

// Camera is a fly-to instruction for the client map.
type Camera struct {
	Lat  float64
	Lon  float64
	Zoom float64
	At   time.Time
}

type queuedToast struct {
	seq   uint64
	toast Toast
}

// cursor marks the last toast and camera instruction a reader has received.
type cursor struct {
	toast  uint64
	camera uint64
}

// Session is one browser map backed by its own controller. It is the
// controller's MapSurface and Notifier: fly-to instructions and toasts are
// queued for the client, and subscribers are signaled on every change.
//
// Every reader has its own cursor into the queue. HTTP polls share one
// cursor; each Subscription has another, so a poll and a stream both see
// every toast once.
type Session struct {
	id        string
	clientIP  string
	createdAt time.Time
	clock     Clock
	ctrl      *Controller

	mu          sync.Mutex
	bounds      station.BoundingBox
	camera      *Camera
	cameraSeq   uint64
	toasts      []queuedToast
	seq         uint64
	poll        cursor
	lastSeen    time.Time
	subscribers map[*Subscription]struct{}
}

func newSession(id, clientIP string, initial Viewport, clock Clock) *Session {
	now := clock.Now()
	return &Session{
		id:          id,
		clientIP:    clientIP,
		createdAt:   now,
		clock:       clock,
		bounds:      initial.Bounds,
		lastSeen:    now,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ClientIP returns the address the session was created from.
func (s *Session) ClientIP() string { return s.clientIP }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Controller returns the session's controller.
func (s *Session) Controller() *Controller { return s.ctrl }

// Move records a viewport change from the client and forwards it to the controller.
func (s *Session) Move(vp Viewport) error {
	if err := vp.Bounds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.bounds = vp.Bounds
	s.mu.Unlock()

	return s.ctrl.MoveEnd(vp)
}

// CurrentBounds returns the last bounds reported by the client.
func (s *Session) CurrentBounds() station.BoundingBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds
}

// FlyTo queues a camera instruction for the client. It replaces any
// instruction not yet read.
func (s *Session) FlyTo(lat, lon float64) {
	s.mu.Lock()
	s.seq++
	s.cameraSeq = s.seq
	s.camera = &Camera{Lat: lat, Lon: lon, Zoom: DefaultFlyToZoom, At: s.clock.Now()}
	s.mu.Unlock()

	s.broadcast()
}

// Notify queues a toast for the client. The oldest toasts are dropped once
// the queue is full.
func (s *Session) Notify(t Toast) {
	s.mu.Lock()
	s.seq++
	s.toasts = append(s.toasts, queuedToast{seq: s.seq, toast: t})
	if len(s.toasts) > maxQueuedToasts {
		s.toasts = s.toasts[len(s.toasts)-maxQueuedToasts:]
	}
	s.mu.Unlock()

	s.broadcast()
}

// Drain returns the toasts and camera instruction queued since the previous
// poll.
func (s *Session) Drain() ([]Toast, *Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(&s.poll)
}

func (s *Session) readLocked(c *cursor) ([]Toast, *Camera) {
	var toasts []Toast
	for _, q := range s.toasts {
		if q.seq > c.toast {
			toasts = append(toasts, q.toast)
		}
	}
	if n := len(s.toasts); n > 0 && s.toasts[n-1].seq > c.toast {
		c.toast = s.toasts[n-1].seq
	}

	var camera *Camera
	if s.camera != nil && s.cameraSeq > c.camera {
		cp := *s.camera
		camera = &cp
		c.camera = s.cameraSeq
	}
	return toasts, camera
}

// Subscription is a stream reader of a session: it is signaled after every
// change and drains toasts through its own cursor.
type Subscription struct {
	sess    *Session
	changes chan struct{}
	cursor  cursor
}

// Subscribe registers a stream reader. It starts where HTTP polling stands,
// so toasts no poll has returned yet are delivered on its first Drain.
func (s *Session) Subscribe() *Subscription {
	sub := &Subscription{sess: s, changes: make(chan struct{}, 1)}

	s.mu.Lock()
	sub.cursor = s.poll
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	return sub
}

// Changes is signaled after every change. Signals coalesce; a slow reader
// sees at least the latest one.
func (sub *Subscription) Changes() <-chan struct{} { return sub.changes }

// Drain returns the toasts and camera instruction this subscription has not
// received yet.
func (sub *Subscription) Drain() ([]Toast, *Camera) {
	sub.sess.mu.Lock()
	defer sub.sess.mu.Unlock()
	return sub.sess.readLocked(&sub.cursor)
}

// Close unsubscribes.
func (sub *Subscription) Close() {
	sub.sess.mu.Lock()
	delete(sub.sess.subscribers, sub)
	sub.sess.mu.Unlock()
}

func (s *Session) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		select {
		case sub.changes <- struct{}{}:
		default:
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
