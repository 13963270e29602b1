package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/api/response"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/station"
)

// stationsMaxAge bounds client reuse of a station collection. Shorter than
// the geodata cache TTL so first-party edits show up promptly.
const stationsMaxAge = 30 * time.Second

// StationFetcher runs one merged station fetch.
type StationFetcher interface {
	Fetch(ctx context.Context, q station.Query) (station.Result, error)
}

// StationHandler handles the stateless station query.
type StationHandler struct {
	fetcher StationFetcher
	logger  zerolog.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(fetcher StationFetcher, logger zerolog.Logger) *StationHandler {
	return &StationHandler{fetcher: fetcher, logger: logger}
}

// ListStations handles GET /v1/stations - merged stations for a country or bounds query.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	q, fieldErrs := parseStationQuery(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid station query", fieldErrs)
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, station.ErrInvalidBounds), errors.Is(err, station.ErrInvalidQuery):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, mapsync.ErrGeodataUnavailable):
			h.logger.Warn().Err(err).Str("query", q.Key()).Msg("station fetch failed")
			response.BadGateway(w, r, mapsync.FailureMessage)
		case errors.Is(err, context.Canceled):
			// Client went away; nothing to write.
		default:
			h.logger.Error().Err(err).Str("query", q.Key()).Msg("station fetch failed")
			response.InternalError(w, r, "failed to load stations")
		}
		return
	}

	cacheControl := response.CacheFor(stationsMaxAge)
	if res.Stale() {
		cacheControl = response.NoStore()
	}
	response.JSON(w, r, http.StatusOK, models.NewStationCollection(q, res, time.Now()), cacheControl)
}

func parseStationQuery(r *http.Request) (station.Query, []models.FieldError) {
	params := r.URL.Query()

	mode := station.Mode(params.Get("mode"))
	if mode == "" {
		mode = station.ModeCountry
	}

	switch mode {
	case station.ModeCountry:
		return station.CountryQuery(), nil
	case station.ModeBounds:
	default:
		return station.Query{}, []models.FieldError{{Field: "mode", Message: "must be country or bounds"}}
	}

	var (
		box  station.BoundingBox
		errs []models.FieldError
	)
	for _, edge := range []struct {
		name string
		dst  *float64
	}{
		{"north", &box.North},
		{"west", &box.West},
		{"south", &box.South},
		{"east", &box.East},
	} {
		raw := params.Get(edge.name)
		if raw == "" {
			errs = append(errs, models.FieldError{Field: edge.name, Message: "is required in bounds mode"})
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, models.FieldError{Field: edge.name, Message: "must be a number"})
			continue
		}
		*edge.dst = v
	}
	if len(errs) > 0 {
		return station.Query{}, errs
	}
	return station.BoundsQuery(box), nil
}
