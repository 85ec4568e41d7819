// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Rejection reasons passed to IncGrantRejected.
const (
	ReasonInvalid     = "invalid"
	ReasonNotFound    = "not_found"
	ReasonUnderflow   = "underflow"
	ReasonUnavailable = "unavailable"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Points service metrics
	IncBalanceRead()
	IncGrantAccepted(amount int64)
	IncGrantRejected(reason string)

	// Store metrics
	ObserveStoreDuration(op string, duration time.Duration)
	IncStoreError(op string)

	// Access gate metrics
	IncGateDenied()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
