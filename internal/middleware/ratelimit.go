package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/cache"
)

// IngestLimiter takes a token from the ingest bucket of one client.
type IngestLimiter interface {
	AllowIngest(ctx context.Context, orgID, ip string, limit cache.IngestLimit) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures RateLimitIngest.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter IngestLimiter
	Enabled bool
	Limit   cache.IngestLimit
}

// RateLimitIngest limits click ingestion per tenant and client IP. It runs
// after TenantScope. Limiter failures let the request through.
func RateLimitIngest(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		logger := cfg.Logger.With("component", "middleware.ratelimit")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			scope, _ := ScopeFromContext(r.Context())

			result, err := cfg.Limiter.AllowIngest(r.Context(), scope.OrgID, ip, cfg.Limit)
			if err != nil {
				logger.Error("ingest rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("org_id", scope.OrgID),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := retryAfterSeconds(result.RetryAfter)
				logger.Warn("ingest rate limit exceeded",
					slog.String("org_id", scope.OrgID),
					slog.String("ip", ip),
					slog.Int("retry_after_seconds", retryAfter),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				writeRateLimitError(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func writeRateLimitError(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":               "Too many clicks from this client",
		"code":                "RATE_LIMITED",
		"retry_after_seconds": retryAfter,
	})
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
