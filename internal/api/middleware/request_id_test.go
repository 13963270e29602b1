package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoplaza/autoplaza/internal/api/middleware"
)

func serveRequestID(header string) (ctxID, responseID string) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stations", nil)
	if header != "" {
		req.Header.Set("X-Request-Id", header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return ctxID, w.Header().Get("X-Request-Id")
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	ctxID, responseID := serveRequestID("")

	assert.True(t, strings.HasPrefix(ctxID, "req_"))
	assert.Equal(t, ctxID, responseID)
}

func TestRequestID_ClientSuppliedIDs(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "viewport correlation id", header: "vp-3f9c2a", keep: true},
		{name: "uuid", header: "6f1c8f5e-8a4b-4c52-9a0e-2e1b7d4c9f10", keep: true},
		{name: "too long", header: strings.Repeat("a", 65), keep: false},
		{name: "contains space", header: "req 1", keep: false},
		{name: "control character", header: "req\x01", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, responseID := serveRequestID(tt.header)

			assert.Equal(t, ctxID, responseID)
			if tt.keep {
				assert.Equal(t, tt.header, ctxID)
			} else {
				assert.NotEqual(t, tt.header, ctxID)
				assert.True(t, strings.HasPrefix(ctxID, "req_"))
			}
		})
	}
}

func TestGetRequestID_ReturnsEmptyStringForMissingContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/stations", nil)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}

func TestRequestID_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		_, id := serveRequestID("")
		assert.NotEmpty(t, id)
		assert.False(t, ids[id], "duplicate request ID generated: %s", id)
		ids[id] = true
	}
}
