// Package middleware provides HTTP middleware components.
package middleware

import (
	"context"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const correlationKey contextKey = "correlation"

// Correlation headers echoed on every response.
const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

const maxCorrelationIDLength = 128

// correlation holds the ids that tie a request's logs together.
type correlation struct {
	requestID string
	traceID   string
}

// RequestID assigns each request a request id, reusing a well-formed
// X-Request-ID and generating a UUID otherwise. A well-formed X-Trace-ID is
// carried along unchanged. The request id is also stored under chi's
// RequestIDKey so chi middleware sees the same value.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := correlation{
			requestID: headerID(r, RequestIDHeader),
			traceID:   headerID(r, TraceIDHeader),
		}
		if c.requestID == "" {
			c.requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, c.requestID)
		if c.traceID != "" {
			w.Header().Set(TraceIDHeader, c.traceID)
		}

		ctx := context.WithValue(r.Context(), correlationKey, c)
		ctx = context.WithValue(ctx, chimiddleware.RequestIDKey, c.requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// headerID returns the header value if it is short printable ASCII, which
// makes it safe to echo and log, and "" otherwise.
func headerID(r *http.Request, header string) string {
	id := r.Header.Get(header)
	if len(id) > maxCorrelationIDLength {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return ""
		}
	}
	return id
}

// GetRequestID returns the request id assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	c, _ := ctx.Value(correlationKey).(correlation)
	return c.requestID
}

// GetTraceID returns the caller supplied trace id, or "".
func GetTraceID(ctx context.Context) string {
	c, _ := ctx.Value(correlationKey).(correlation)
	return c.traceID
}
