// Package response writes JSON and problem+json responses with the request
// ID echoed for correlation.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/autoplaza/autoplaza/internal/api/middleware"
	"github.com/autoplaza/autoplaza/internal/api/models"
)

// Option sets response headers before the status line is written.
type Option func(h http.Header)

// CacheFor lets clients and shared caches reuse the response for d.
func CacheFor(d time.Duration) Option {
	return func(h http.Header) {
		h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(d.Seconds())))
	}
}

// NoStore forbids caching. Map session snapshots drain the toast queue, so a
// cached copy would replay or hide notifications.
func NoStore() Option {
	return func(h http.Header) {
		h.Set("Cache-Control", "no-store")
	}
}

// Location sets the Location header.
func Location(url string) Option {
	return func(h http.Header) {
		if url != "" {
			h.Set("Location", url)
		}
	}
}

// JSON writes data as JSON with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}, opts ...Option) {
	h := w.Header()
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		h.Set("X-Request-Id", requestID)
	}
	h.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(h)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}, opts ...Option) {
	JSON(w, r, http.StatusCreated, data, append([]Option{Location(location)}, opts...)...)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Error writes problem as application/problem+json for the request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func writeProblem(w http.ResponseWriter, r *http.Request, build func(traceID, detail string) *models.Problem, detail string) {
	Error(w, r, build(middleware.GetRequestID(r.Context()), detail))
}

// BadRequest writes a 400 with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewForbidden, detail)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewNotFound, detail)
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewConflict, detail)
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewInternalError, detail)
}

// BadGateway writes a 502 for geodata or geolocation upstream failures.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewBadGateway, detail)
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.NewServiceUnavailable, detail)
}
