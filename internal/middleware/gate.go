package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pointsledger/pointsledger/internal/auth"
	"github.com/pointsledger/pointsledger/internal/metrics"
)

// GateHeader is the primary credential header.
const GateHeader = "API-KEY"

// DefaultGateMinDuration is the floor applied to denied requests.
const DefaultGateMinDuration = 100 * time.Millisecond

// GateConfig holds configuration for the access gate.
type GateConfig struct {
	Logger    *slog.Logger
	Validator auth.Validator
	Metrics   metrics.Recorder
	// MinDuration pads denials so that every failure path takes the same time.
	MinDuration time.Duration
}

// Gate rejects requests that do not present the shared secret. Denials
// are uniform: same status, same body, regardless of cause.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			credential := extractCredential(r)
			if credential != "" && cfg.Validator.Validate(r.Context(), credential) {
				next.ServeHTTP(w, r)
				return
			}

			reason := "invalid_credential"
			if credential == "" {
				reason = "missing_credential"
			}
			cfg.Logger.Warn("access denied",
				slog.String("reason", reason),
				slog.String("ip", getClientIP(r)),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			cfg.Metrics.IncGateDenied()

			if elapsed := time.Since(start); elapsed < cfg.MinDuration {
				time.Sleep(cfg.MinDuration - elapsed)
			}
			writeForbidden(w)
		})
	}
}

// extractCredential reads API-KEY, then "Authorization: Bearer", then
// X-API-Key.
func extractCredential(r *http.Request) string {
	if key := r.Header.Get(GateHeader); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// writeForbidden writes the single denial response.
func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"Forbidden: Invalid API key."}}`))
}

// VerdictCache remembers accepted credentials by fingerprint.
type VerdictCache interface {
	HasGateVerdict(ctx context.Context, fingerprint string) (bool, error)
	SetGateVerdict(ctx context.Context, fingerprint string, ttl time.Duration) error
}

// CachedValidator skips the wrapped validator for credentials accepted
// within TTL. Cache failures fall through to the wrapped validator.
type CachedValidator struct {
	next  auth.Validator
	cache VerdictCache
	scope string
	ttl   time.Duration
}

// NewCachedValidator wraps next. scope namespaces fingerprints so that a
// new secret does not inherit verdicts issued for the old one.
func NewCachedValidator(next auth.Validator, cache VerdictCache, scope string, ttl time.Duration) *CachedValidator {
	return &CachedValidator{next: next, cache: cache, scope: scope, ttl: ttl}
}

// Validate implements auth.Validator.
func (v *CachedValidator) Validate(ctx context.Context, presented string) bool {
	if presented == "" {
		return false
	}

	fp := auth.Fingerprint(v.scope + "\x00" + presented)
	if ok, err := v.cache.HasGateVerdict(ctx, fp); err == nil && ok {
		return true
	}

	if !v.next.Validate(ctx, presented) {
		return false
	}
	_ = v.cache.SetGateVerdict(ctx, fp, v.ttl)
	return true
}
