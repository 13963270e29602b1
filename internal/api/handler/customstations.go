package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/api/response"
	"github.com/autoplaza/autoplaza/internal/station"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CustomStationService manages first-party stations.
type CustomStationService interface {
	List(ctx context.Context, opts station.ListOptions) (*station.ListResult, error)
	Get(ctx context.Context, id string) (*station.Record, error)
	Create(ctx context.Context, input *station.Input) (*station.Record, error)
	Update(ctx context.Context, id string, input *station.Input) (*station.Record, error)
	Delete(ctx context.Context, id string) error
}

// CustomStationHandler handles first-party station administration.
type CustomStationHandler struct {
	service CustomStationService
	logger  zerolog.Logger
}

// NewCustomStationHandler creates a new CustomStationHandler.
func NewCustomStationHandler(service CustomStationService, logger zerolog.Logger) *CustomStationHandler {
	return &CustomStationHandler{service: service, logger: logger}
}

// ListCustomStations handles GET /v1/admin/custom-stations - list first-party stations.
func (h *CustomStationHandler) ListCustomStations(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and 200"},
			})
			return
		}
		limit = v
	}

	result, err := h.service.List(r.Context(), station.ListOptions{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list custom stations")
		response.InternalError(w, r, "failed to list custom stations")
		return
	}

	page := models.PagedCustomStations{
		Items: make([]models.CustomStation, 0, len(result.Items)),
		Meta:  models.PagedResponseMeta{Limit: limit},
	}
	for _, rec := range result.Items {
		page.Items = append(page.Items, models.CustomStationFromRecord(rec))
	}
	if result.NextCursor != "" {
		cursor := result.NextCursor
		page.Meta.NextCursor = &cursor
	}
	response.JSON(w, r, http.StatusOK, page)
}

// GetCustomStation handles GET /v1/admin/custom-stations/{stationId}.
func (h *CustomStationHandler) GetCustomStation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "stationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.CustomStationFromRecord(rec))
}

// CreateCustomStation handles POST /v1/admin/custom-stations.
func (h *CustomStationHandler) CreateCustomStation(w http.ResponseWriter, r *http.Request) {
	var input models.CustomStationRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	rec, err := h.service.Create(r.Context(), input.ToInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info().
		Str("station_id", rec.ID).
		Str("admin_id", GetUserID(r.Context())).
		Msg("custom station created via admin API")
	response.Created(w, r, "/v1/admin/custom-stations/"+rec.ID, models.CustomStationFromRecord(rec))
}

// UpdateCustomStation handles PUT /v1/admin/custom-stations/{stationId}.
func (h *CustomStationHandler) UpdateCustomStation(w http.ResponseWriter, r *http.Request) {
	var input models.CustomStationRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	rec, err := h.service.Update(r.Context(), chi.URLParam(r, "stationId"), input.ToInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.CustomStationFromRecord(rec))
}

// DeleteCustomStation handles DELETE /v1/admin/custom-stations/{stationId}.
func (h *CustomStationHandler) DeleteCustomStation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "stationId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *CustomStationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *station.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, "invalid custom station", models.FieldErrorsFrom(verr.Errors))
	case errors.Is(err, station.ErrStationNotFound):
		response.NotFound(w, r, "custom station not found")
	default:
		h.logger.Error().Err(err).Msg("custom station operation failed")
		response.InternalError(w, r, "custom station operation failed")
	}
}
