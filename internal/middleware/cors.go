package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// CORSConfig lists the browser origins allowed to call the API. Wildcard
// subdomains such as "https://*.example.com" are accepted.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

// CORS lets dashboards served from the configured origins read series and
// post clicks. With no origins configured it adds nothing, so the API stays
// same-origin only.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			RequestIDHeader, TraceIDHeader,
			OrgIDHeader, ProjectIDHeader, AccountIDHeader,
		},
		ExposedHeaders: []string{
			RequestIDHeader, "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		MaxAge: int(maxAge.Seconds()),
	})
}
