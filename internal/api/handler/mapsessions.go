package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/api/response"
	"github.com/autoplaza/autoplaza/internal/geolocation"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/station"
)

// SessionStore opens and looks up map sessions.
type SessionStore interface {
	Create(ctx context.Context, opts mapsync.CreateOptions) (*mapsync.Session, error)
	Get(id string) (*mapsync.Session, error)
	Delete(id string) error
	Len() int
}

// MapSessionHandler handles map session endpoints.
type MapSessionHandler struct {
	sessions SessionStore
	logger   zerolog.Logger
}

// NewMapSessionHandler creates a new MapSessionHandler.
func NewMapSessionHandler(sessions SessionStore, logger zerolog.Logger) *MapSessionHandler {
	return &MapSessionHandler{sessions: sessions, logger: logger}
}

// CreateSession handles POST /v1/map/sessions - open a map and start its country load.
func (h *MapSessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateMapSessionRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	sess, err := h.sessions.Create(r.Context(), mapsync.CreateOptions{
		Viewport: input.Viewport.ToDomain(),
		AutoSync: input.AutoSync,
		ClientIP: clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, r, "/v1/map/sessions/"+sess.ID(), snapshot(sess), response.NoStore())
}

// GetSession handles GET /v1/map/sessions/{sessionId} - current state, draining queued toasts.
func (h *MapSessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, snapshot(sess), response.NoStore())
}

// DeleteSession handles DELETE /v1/map/sessions/{sessionId}.
func (h *MapSessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// MoveViewport handles POST /v1/map/sessions/{sessionId}/viewport - a pan or zoom ended.
func (h *MapSessionHandler) MoveViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.Viewport
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := sess.Move(input.ToDomain()); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusAccepted, snapshot(sess), response.NoStore())
}

// SetAutoSync handles PUT /v1/map/sessions/{sessionId}/auto-sync.
func (h *MapSessionHandler) SetAutoSync(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.AutoSyncRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Enabled == nil {
		response.BadRequest(w, r, "enabled is required", []models.FieldError{
			{Field: "enabled", Message: "is required"},
		})
		return
	}

	if err := sess.Controller().SetAutoSync(*input.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, snapshot(sess), response.NoStore())
}

// SearchArea handles POST /v1/map/sessions/{sessionId}/search-area - load the
// candidate bounds while auto-sync is off.
func (h *MapSessionHandler) SearchArea(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	outcome, err := sess.Controller().SearchArea(r.Context())
	h.writeAction(w, r, sess, outcome, err)
}

// Retry handles POST /v1/map/sessions/{sessionId}/retry - repeat the last query.
func (h *MapSessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	outcome, err := sess.Controller().Retry(r.Context())
	h.writeAction(w, r, sess, outcome, err)
}

// Locate handles POST /v1/map/sessions/{sessionId}/locate - center the map on the user.
func (h *MapSessionHandler) Locate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.LocateRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &input); err != nil {
			response.BadRequest(w, r, "invalid JSON body", nil)
			return
		}
	}

	pos, err := sess.Controller().Locate(r.Context(), geolocation.Options{
		Timeout:  time.Duration(input.TimeoutMs) * time.Millisecond,
		ClientIP: sess.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, mapsync.ErrClosed):
			response.NotFound(w, r, "map session not found")
		case errors.Is(err, mapsync.ErrNoGeolocator), errors.Is(err, geolocation.ErrTimeout):
			response.ServiceUnavailable(w, r, geolocation.Message(err))
		case errors.Is(err, geolocation.ErrPermissionDenied):
			response.Forbidden(w, r, geolocation.Message(err))
		default:
			response.BadGateway(w, r, geolocation.Message(err))
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.LocateResponse{
		Position: pos,
		State:    snapshot(sess),
	}, response.NoStore())
}

// writeAction writes the result of a synchronous load. A geodata failure is
// part of the session state, not a request failure.
func (h *MapSessionHandler) writeAction(w http.ResponseWriter, r *http.Request, sess *mapsync.Session, outcome mapsync.Outcome, err error) {
	if err != nil && !errors.Is(err, mapsync.ErrGeodataUnavailable) {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.MapActionResponse{
		Outcome: models.LoadOutcomeFrom(outcome),
		State:   snapshot(sess),
	}, response.NoStore())
}

func (h *MapSessionHandler) session(w http.ResponseWriter, r *http.Request) (*mapsync.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *MapSessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mapsync.ErrSessionNotFound), errors.Is(err, mapsync.ErrClosed):
		response.NotFound(w, r, "map session not found")
	case errors.Is(err, station.ErrInvalidBounds), errors.Is(err, station.ErrInvalidQuery):
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "bounds", Message: "must be finite with north not below south"},
		})
	case errors.Is(err, mapsync.ErrAutoSyncEnabled):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, mapsync.ErrTooManySessions):
		response.ServiceUnavailable(w, r, "too many open map sessions, try again later")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to write.
	default:
		h.logger.Error().Err(err).Msg("map session operation failed")
		response.InternalError(w, r, "map session operation failed")
	}
}

// snapshot returns the state with the toasts queued since the previous poll.
func snapshot(sess *mapsync.Session) models.MapSessionState {
	st := sess.Controller().Snapshot()
	toasts, camera := sess.Drain()
	return models.NewMapSessionState(sess, st, toasts, camera)
}
