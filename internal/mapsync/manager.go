package mapsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/featureflags"
	"github.com/autoplaza/autoplaza/internal/station"
)

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultMaxSessions = 1000
)

// ManagerConfig holds configuration for the session manager.
type ManagerConfig struct {
	// Coordinator is shared by every session. Required.
	Coordinator *Coordinator

	// Geolocator serves Locate. Optional.
	Geolocator Geolocator

	// Flags supplies the auto-sync default. Optional.
	Flags FlagReader

	// Clock drives debounce and idle eviction (default: RealClock).
	Clock Clock

	// Logger for session operations.
	Logger zerolog.Logger

	// Metrics records loads and open sessions. Optional.
	Metrics *Metrics

	// DebounceInterval defaults to DefaultDebounceInterval.
	DebounceInterval time.Duration

	// LocateTimeout defaults to DefaultLocateTimeout.
	LocateTimeout time.Duration

	// IdleTTL evicts sessions not touched for this long (default: 30 minutes).
	IdleTTL time.Duration

	// MaxSessions caps concurrently open sessions (default: 1000).
	MaxSessions int
}

// CreateOptions describes a new session.
type CreateOptions struct {
	Viewport Viewport

	// AutoSync overrides the map_auto_sync_default flag when set.
	AutoSync *bool

	ClientIP string
}

// Manager owns the open map sessions.
type Manager struct {
	coord       *Coordinator
	geolocator  Geolocator
	flags       FlagReader
	clock       Clock
	logger      zerolog.Logger
	metrics     *Metrics
	debounce    time.Duration
	locateTO    time.Duration
	idleTTL     time.Duration
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}

	return &Manager{
		coord:       cfg.Coordinator,
		geolocator:  cfg.Geolocator,
		flags:       cfg.Flags,
		clock:       clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		debounce:    cfg.DebounceInterval,
		locateTO:    cfg.LocateTimeout,
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a session and starts its initial country-scoped load.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	if err := opts.Viewport.Bounds.Validate(); err != nil {
		return nil, err
	}

	autoSync := true
	if opts.AutoSync != nil {
		autoSync = *opts.AutoSync
	} else if m.flags != nil {
		autoSync = m.flags.IsEnabled(ctx, featureflags.FlagMapAutoSyncDefault)
	}

	id := uuid.New().String()
	sess := newSession(id, opts.ClientIP, opts.Viewport, m.clock)
	sess.ctrl = New(Config{
		Coordinator:      m.coord,
		Surface:          sess,
		Geolocator:       m.geolocator,
		Notifier:         sess,
		Clock:            m.clock,
		Logger:           m.logger.With().Str("session_id", id).Logger(),
		Metrics:          m.metrics,
		DebounceInterval: m.debounce,
		LocateTimeout:    m.locateTO,
		AutoSync:         autoSync,
		OnChange:         sess.broadcast,
	})

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		sess.ctrl.Close()
		return nil, ErrTooManySessions
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	m.metrics.sessionOpened()
	m.logger.Info().Str("session_id", id).Bool("auto_sync", autoSync).Msg("map session opened")

	if err := sess.ctrl.LoadAsync(station.CountryQuery()); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session and marks it as active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch()
	return sess, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.closeSession(sess, "deleted")
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle closes sessions idle for longer than the TTL and returns how many
// were closed.
func (m *Manager) EvictIdle() int {
	cutoff := m.clock.Now().Add(-m.idleTTL)

	var idle []*Session
	m.mu.Lock()
	for id, sess := range m.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		m.closeSession(sess, "idle")
	}
	return len(idle)
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.logger.Debug().Int("evicted", n).Msg("evicted idle map sessions")
			}
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		m.closeSession(sess, "shutdown")
	}
}

func (m *Manager) closeSession(sess *Session, reason string) {
	sess.ctrl.Close()
	sess.broadcast()
	m.metrics.sessionClosed()
	m.logger.Info().Str("session_id", sess.id).Str("reason", reason).Msg("map session closed")
}
