package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pointsledger/pointsledger/internal/cache"
)

// RateLimiter takes tokens from shared buckets, normally *cache.Cache.
type RateLimiter interface {
	Take(ctx context.Context, scope cache.Scope, subject string, l cache.Limit) (*cache.Decision, error)
}

// RateLimitConfig holds the limits applied at the edge. A nil Limiter
// disables limiting; limiter errors fail open.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	IPEnabled bool
	IPRPS     int
	IPBurst   int

	// Writes per minute shared by all callers of one tenant; 0 disables.
	TenantWritesPerMinute int
	TenantWriteBurst      int
}

// TenantKeyFunc extracts the tenant a write is addressed to.
type TenantKeyFunc func(*http.Request) string

// TenantFromRoute reads the tenantID route parameter.
func TenantFromRoute(r *http.Request) string {
	return chi.URLParam(r, "tenantID")
}

// TenantFromQuery reads the tenant from query parameter name, as the
// query-addressed legacy routes carry it.
func TenantFromQuery(name string) TenantKeyFunc {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// RateLimitIP limits requests per client address.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limit := cache.PerSecond(cfg.IPRPS, cfg.IPBurst)
	return cfg.limiter(cache.ScopeIP, limit, getClientIP, 0, cfg.IPEnabled)
}

// RateLimitTenantWrites limits ledger writes per tenant, whichever caller
// sends them. key locates the tenant; requests without one pass through and
// are rejected downstream.
func RateLimitTenantWrites(cfg RateLimitConfig, key TenantKeyFunc) func(http.Handler) http.Handler {
	limit := cache.PerMinute(cfg.TenantWritesPerMinute, cfg.TenantWriteBurst)
	return cfg.limiter(cache.ScopeTenantWrite, limit, key, cfg.TenantWritesPerMinute, cfg.TenantWritesPerMinute > 0)
}

func (cfg RateLimitConfig) limiter(scope cache.Scope, limit cache.Limit, key func(*http.Request) string, headerLimit int, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := key(r)
			if !enabled || cfg.Limiter == nil || subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := cfg.Limiter.Take(r.Context(), scope, subject, limit)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("scope", string(scope)),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if headerLimit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(headerLimit))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}

			if !d.Allowed {
				attrs := []any{
					slog.String("scope", string(scope)),
					slog.Float64("retry_after_seconds", d.RetryAfter.Seconds()),
					slog.String("request_id", GetRequestID(r.Context())),
				}
				if scope == cache.ScopeTenantWrite {
					attrs = append(attrs, slog.String("tenant_id", subject))
				}
				cfg.Logger.Warn("rate limit exceeded", attrs...)
				writeRateLimitError(w, int(d.RetryAfter.Seconds()+0.999))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes a 429 with a whole-second Retry-After of at
// least one.
func writeRateLimitError(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs < 1 {
		retryAfterSecs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = fmt.Fprintf(w, `{"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded. Retry after %d seconds."}}`, retryAfterSecs)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
