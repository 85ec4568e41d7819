package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fakeDrainer bool

func (d fakeDrainer) Draining() bool { return bool(d) }

func serveHealth(t *testing.T, fn http.HandlerFunc, path string) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestHealthHandler_Healthz(t *testing.T) {
	// Liveness ignores a failing store.
	h := NewHealthHandler(pinger{err: errors.New("down")}, "postgres", nil)

	code, resp := serveHealth(t, h.Healthz, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		store      HealthChecker
		storeName  string
		cache      HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all healthy", store: pinger{}, storeName: "postgres", cache: pinger{},
			wantCode: http.StatusOK, wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "store down", store: pinger{err: errors.New("server selection timeout")}, storeName: "mongo", cache: pinger{},
			wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy",
			wantChecks: map[string]string{"mongo": "error: server selection timeout", "redis": "ok"},
		},
		{
			name: "redis down", store: pinger{}, storeName: "memory", cache: pinger{err: errors.New("connection refused")},
			wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy",
			wantChecks: map[string]string{"memory": "ok", "redis": "error: connection refused"},
		},
		{
			name:     "nothing configured",
			wantCode: http.StatusOK, wantStatus: "ok",
			wantChecks: map[string]string{"store": "not configured", "redis": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.storeName, tt.cache)

			code, resp := serveHealth(t, h.Readyz, "/readyz")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestHealthHandler_Readyz_Draining(t *testing.T) {
	h := NewHealthHandler(pinger{}, "postgres", nil).WithDrainer(fakeDrainer(true))

	code, resp := serveHealth(t, h.Readyz, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "draining", resp.Status)
	assert.Empty(t, resp.Checks, "no dependency checks once draining")

	h.WithDrainer(fakeDrainer(false))
	code, _ = serveHealth(t, h.Readyz, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}
