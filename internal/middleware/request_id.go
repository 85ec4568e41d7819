// Package middleware holds the HTTP middleware in front of the ledger API:
// correlation ids, request logging, panic recovery, the gate, rate limits,
// CORS and response hardening.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Correlation headers. Both are echoed on the response.
const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

// maxIDLength caps caller-supplied ids before they reach logs.
const maxIDLength = 128

type correlationKey struct{}

type correlation struct {
	requestID string
	traceID   string
}

// RequestID attaches correlation ids to the request. A caller's
// X-Request-ID is kept when it is short printable ASCII, otherwise a UUID
// replaces it. X-Trace-ID is passed through under the same rule and
// dropped when unacceptable.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := correlation{
			requestID: r.Header.Get(RequestIDHeader),
			traceID:   r.Header.Get(TraceIDHeader),
		}
		if !acceptableID(c.requestID) {
			c.requestID = uuid.NewString()
		}
		if !acceptableID(c.traceID) {
			c.traceID = ""
		}

		w.Header().Set(RequestIDHeader, c.requestID)
		if c.traceID != "" {
			w.Header().Set(TraceIDHeader, c.traceID)
		}

		ctx := context.WithValue(r.Context(), correlationKey{}, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func acceptableID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

func correlationFrom(ctx context.Context) correlation {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

// GetRequestID returns the request id, or "" outside RequestID.
func GetRequestID(ctx context.Context) string {
	return correlationFrom(ctx).requestID
}

// GetTraceID returns the caller's trace id, if one was accepted.
func GetTraceID(ctx context.Context) string {
	return correlationFrom(ctx).traceID
}
