package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncBalanceRead is a no-op.
func (n *NoopRecorder) IncBalanceRead() {}

// IncGrantAccepted is a no-op.
func (n *NoopRecorder) IncGrantAccepted(amount int64) {}

// IncGrantRejected is a no-op.
func (n *NoopRecorder) IncGrantRejected(reason string) {}

// ObserveStoreDuration is a no-op.
func (n *NoopRecorder) ObserveStoreDuration(op string, duration time.Duration) {}

// IncStoreError is a no-op.
func (n *NoopRecorder) IncStoreError(op string) {}

// IncGateDenied is a no-op.
func (n *NoopRecorder) IncGateDenied() {}
