package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Drainer reports whether the process has begun shutting down.
type Drainer interface {
	Draining() bool
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	store     HealthChecker
	storeName string
	cache     HealthChecker
	drain     Drainer
}

// NewHealthHandler creates a new HealthHandler. storeName labels the store
// check ("postgres", "mongo", "memory").
// Pass nil for store or cache if they are not configured.
func NewHealthHandler(store HealthChecker, storeName string, cache HealthChecker) *HealthHandler {
	if storeName == "" {
		storeName = "store"
	}
	return &HealthHandler{
		store:     store,
		storeName: storeName,
		cache:     cache,
	}
}

// WithDrainer makes Readyz fail once d reports draining, so the instance
// leaves rotation before its store is released.
func (h *HealthHandler) WithDrainer(d Drainer) *HealthHandler {
	h.drain = d
	return h
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports liveness.
// It returns 200 if the server is running. No dependency checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports whether the instance should receive traffic.
// It checks all dependencies and returns 200 only if all are healthy.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.drain != nil && h.drain.Draining() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "draining"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	check := func(name string, c HealthChecker) {
		if c == nil {
			checks[name] = "not configured"
			return
		}
		if err := c.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	check(h.storeName, h.store)
	check("redis", h.cache)

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status: status,
		Checks: checks,
	})
}
