package models

import (
	"github.com/autoplaza/autoplaza/internal/geolocation"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/station"
)

// Viewport is the map camera reported by the client after a pan or zoom.
type Viewport struct {
	CenterLat float64             `json:"centerLat"`
	CenterLon float64             `json:"centerLon"`
	Zoom      float64             `json:"zoom"`
	Bounds    station.BoundingBox `json:"bounds"`
}

// ToDomain converts the viewport.
func (v Viewport) ToDomain() mapsync.Viewport {
	return mapsync.Viewport{
		CenterLat: v.CenterLat,
		CenterLon: v.CenterLon,
		Zoom:      v.Zoom,
		Bounds:    v.Bounds,
	}
}

func viewportFrom(v *mapsync.Viewport) *Viewport {
	if v == nil {
		return nil
	}
	return &Viewport{
		CenterLat: v.CenterLat,
		CenterLon: v.CenterLon,
		Zoom:      v.Zoom,
		Bounds:    v.Bounds,
	}
}

// CreateMapSessionRequest opens a map session.
type CreateMapSessionRequest struct {
	Viewport Viewport `json:"viewport"`

	// AutoSync overrides the server default when set.
	AutoSync *bool `json:"autoSync,omitempty"`
}

// AutoSyncRequest toggles viewport auto-sync.
type AutoSyncRequest struct {
	Enabled *bool `json:"enabled"`
}

// LocateRequest asks for the user's position.
type LocateRequest struct {
	// TimeoutMs caps the lookup; the server limit applies when larger.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// Toast is a user-facing message queued by the session.
type Toast struct {
	Kind    mapsync.ToastKind `json:"kind"`
	Message string            `json:"message"`
	At      Timestamp         `json:"at"`
}

// Camera is a fly-to instruction for the client map.
type Camera struct {
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Zoom float64   `json:"zoom"`
	At   Timestamp `json:"at"`
}

// LoadStats counts load events over the session's lifetime.
type LoadStats struct {
	LoadsStarted    int `json:"loadsStarted"`
	Superseded      int `json:"superseded"`
	StaleDiscarded  int `json:"staleDiscarded"`
	Canceled        int `json:"canceled"`
	Applied         int `json:"applied"`
	EmptySuppressed int `json:"emptySuppressed"`
	Failures        int `json:"failures"`
	StaleServed     int `json:"staleServed"`
}

// MapSessionState is the full client-facing state of a map session.
type MapSessionState struct {
	ID              string               `json:"id"`
	Generation      uint64               `json:"generation"`
	Loading         bool                 `json:"loading"`
	AutoSync        bool                 `json:"autoSync"`
	PendingSearch   bool                 `json:"pendingSearch"`
	Viewport        *Viewport            `json:"viewport,omitempty"`
	CandidateBounds *station.BoundingBox `json:"candidateBounds,omitempty"`
	Count           int                  `json:"count"`
	Markers         []station.Feature    `json:"markers"`
	List            []station.Feature    `json:"list"`
	HasLoaded       bool                 `json:"hasLoaded"`
	LastQuery       *StationQuery        `json:"lastQuery,omitempty"`
	LastUpdated     *Timestamp           `json:"lastUpdated,omitempty"`
	Error           *string              `json:"error,omitempty"`
	Stale           bool                 `json:"stale"`
	Toasts          []Toast              `json:"toasts"`
	Camera          *Camera              `json:"camera,omitempty"`
	Stats           LoadStats            `json:"stats"`
	CreatedAt       Timestamp            `json:"createdAt"`
}

// NewMapSessionState builds the response from a snapshot and the drained
// client queue.
func NewMapSessionState(sess *mapsync.Session, st mapsync.State, toasts []mapsync.Toast, camera *mapsync.Camera) MapSessionState {
	out := MapSessionState{
		ID:              sess.ID(),
		Generation:      uint64(st.Generation),
		Loading:         st.Loading,
		AutoSync:        st.AutoSync,
		PendingSearch:   st.PendingSearch,
		Viewport:        viewportFrom(st.Viewport),
		CandidateBounds: st.CandidateBounds,
		Count:           len(st.Markers),
		Markers:         st.Markers,
		List:            st.List,
		HasLoaded:       st.HasLoaded,
		Stale:           st.Stale,
		LastUpdated:     TimestampPtr(st.LastUpdated),
		Toasts:          make([]Toast, 0, len(toasts)),
		Stats:           LoadStats(st.Stats),
		CreatedAt:       Timestamp(sess.CreatedAt()),
	}
	if out.Markers == nil {
		out.Markers = []station.Feature{}
	}
	if out.List == nil {
		out.List = []station.Feature{}
	}
	if st.LastQuery != nil {
		q := StationQueryFrom(*st.LastQuery)
		out.LastQuery = &q
	}
	if st.Error != "" {
		msg := st.Error
		out.Error = &msg
	}
	for _, t := range toasts {
		out.Toasts = append(out.Toasts, Toast{Kind: t.Kind, Message: t.Message, At: Timestamp(t.At)})
	}
	if camera != nil {
		out.Camera = &Camera{Lat: camera.Lat, Lon: camera.Lon, Zoom: camera.Zoom, At: Timestamp(camera.At)}
	}
	return out
}

// LoadOutcome describes how a synchronous load ended.
type LoadOutcome struct {
	Generation uint64           `json:"generation"`
	Status     mapsync.Status   `json:"status"`
	Decision   mapsync.Decision `json:"decision,omitempty"`
	Count      int              `json:"count"`
	Stale      bool             `json:"stale,omitempty"`
	Query      StationQuery     `json:"query"`
}

// LoadOutcomeFrom converts a controller outcome.
func LoadOutcomeFrom(o mapsync.Outcome) LoadOutcome {
	return LoadOutcome{
		Generation: uint64(o.Generation),
		Status:     o.Status,
		Decision:   o.Decision,
		Count:      o.Count,
		Stale:      o.Stale,
		Query:      StationQueryFrom(o.Query),
	}
}

// MapActionResponse is returned by search-area and retry.
type MapActionResponse struct {
	Outcome LoadOutcome     `json:"outcome"`
	State   MapSessionState `json:"state"`
}

// LocateResponse is returned by a successful locate.
type LocateResponse struct {
	Position geolocation.Position `json:"position"`
	State    MapSessionState      `json:"state"`
}
