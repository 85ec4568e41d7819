package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pointsledger/pointsledger/internal/metrics"
)

func TestMetricsHandler(t *testing.T) {
	rec := metrics.NewInMemory()
	rec.IncBalanceRead()
	rec.IncGrantAccepted(250)
	rec.IncGrantAccepted(-40)
	rec.IncGrantRejected(metrics.ReasonUnderflow)
	rec.IncGrantRejected(metrics.ReasonInvalid)
	rec.ObserveStoreDuration("find_customer", 1500*time.Microsecond)
	rec.IncStoreError("append_entry")
	rec.IncGateDenied()

	rr := httptest.NewRecorder()
	NewMetricsHandler(rec).Metrics(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	for _, line := range []string{
		"pointsledger_balance_reads_total 1",
		"pointsledger_grants_accepted_total 2",
		"pointsledger_points_granted_total 250",
		"pointsledger_points_debited_total 40",
		`pointsledger_grants_rejected_total{reason="invalid"} 1`,
		`pointsledger_grants_rejected_total{reason="underflow"} 1`,
		"pointsledger_store_call_duration_seconds_count 1",
		"pointsledger_store_call_duration_seconds_sum 0.001500",
		`pointsledger_store_errors_total{op="append_entry"} 1`,
		"pointsledger_gate_denied_total 1",
	} {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("metrics output missing %q\n%s", line, body)
		}
	}

	if strings.Index(body, `reason="invalid"`) > strings.Index(body, `reason="underflow"`) {
		t.Error("labelled series should be emitted in sorted order")
	}
}

func TestMetricsHandler_NoSnapshotter(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMetricsHandler(nil).Metrics(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}
