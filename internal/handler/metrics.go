package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pointsledger/pointsledger/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "pointsledger_balance_reads_total %d\n", snap.BalanceReads)
	writeMetric(w, "pointsledger_grants_accepted_total %d\n", snap.GrantsAccepted)
	writeMetric(w, "pointsledger_points_granted_total %d\n", snap.PointsGranted)
	writeMetric(w, "pointsledger_points_debited_total %d\n", snap.PointsDebited)

	for _, reason := range sortedKeys(snap.GrantsRejected) {
		writeMetric(w, "pointsledger_grants_rejected_total{reason=%q} %d\n", reason, snap.GrantsRejected[reason])
	}

	writeMetric(w, "pointsledger_store_call_duration_seconds_count %d\n", snap.StoreCallCount)
	writeMetric(w, "pointsledger_store_call_duration_seconds_sum %.6f\n", float64(snap.StoreCallTotalNs)/1e9)
	for _, op := range sortedKeys(snap.StoreErrors) {
		writeMetric(w, "pointsledger_store_errors_total{op=%q} %d\n", op, snap.StoreErrors[op])
	}

	writeMetric(w, "pointsledger_gate_denied_total %d\n", snap.GateDenied)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
