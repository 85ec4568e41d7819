package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	dashboards := []string{"https://admin.pointsledger.example", "*.retailmax.example"}

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{"same origin passes through", dashboards, "", http.MethodGet, http.StatusTeapot, ""},
		{"no origins configured", nil, "https://admin.pointsledger.example", http.MethodGet, http.StatusTeapot, ""},
		{"exact origin", dashboards, "https://admin.pointsledger.example", http.MethodGet, http.StatusTeapot, "https://admin.pointsledger.example"},
		{"exact origin is case-insensitive", dashboards, "https://ADMIN.pointsledger.example", http.MethodGet, http.StatusTeapot, "https://ADMIN.pointsledger.example"},
		{"wildcard subdomain", dashboards, "https://pos.retailmax.example", http.MethodPut, http.StatusTeapot, "https://pos.retailmax.example"},
		{"wildcard does not match look-alike", dashboards, "https://notretailmax.example", http.MethodGet, http.StatusTeapot, ""},
		{"wildcard does not match apex", dashboards, "https://retailmax.example", http.MethodGet, http.StatusTeapot, ""},
		{"unknown origin preflight refused", dashboards, "https://evil.example", http.MethodOptions, http.StatusForbidden, ""},
		{"allowed preflight", dashboards, "https://admin.pointsledger.example", http.MethodOptions, http.StatusNoContent, "https://admin.pointsledger.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := CORS(tt.origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))
			req := httptest.NewRequest(tt.method, "/api/v1/tenants/companyB/points", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORS_PreflightAdvertisesLedgerSurface(t *testing.T) {
	t.Parallel()

	h := CORS([]string{"https://admin.pointsledger.example"})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tenants/companyA/points", nil)
	req.Header.Set("Origin", "https://admin.pointsledger.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	methods := rr.Header().Get("Access-Control-Allow-Methods")
	for _, m := range []string{"GET", "PUT", "POST"} {
		assert.Contains(t, methods, m)
	}
	assert.NotContains(t, methods, "DELETE", "ledger entries are never deleted")
	assert.NotContains(t, methods, "PATCH", "ledger entries are never modified")

	headers := rr.Header().Get("Access-Control-Allow-Headers")
	for _, hdr := range []string{GateHeader, "Authorization", "X-API-Key", "Content-Type"} {
		assert.True(t, strings.Contains(headers, hdr), "missing allowed header %s", hdr)
	}
	assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
}
