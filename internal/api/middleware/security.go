package middleware

import (
	"net/http"

	"github.com/autoplaza/autoplaza/internal/api/models"
)

// SecurityHeaders adds standard security headers to all HTTP responses.
// Browsers never render API responses, so the CSP denies everything. The
// map client is served from its own origin and asks for geolocation there.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects requests a load balancer forwarded over plain HTTP or
// WS. It trusts X-Forwarded-Proto, so requests without the header (direct
// connections, local development) pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Header.Get("X-Forwarded-Proto") {
			case "", "https", "wss":
				next.ServeHTTP(w, r)
			default:
				problem := models.NewProblem(
					"https://api.autoplaza.nl/problems/tls-required",
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
			}
		})
	}
}
