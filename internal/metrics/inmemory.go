package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	BalanceReads     uint64
	GrantsAccepted   uint64
	PointsGranted    int64
	PointsDebited    int64
	GrantsRejected   map[string]uint64
	StoreCallCount   uint64
	StoreCallTotalNs int64
	StoreErrors      map[string]uint64
	GateDenied       uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics
// endpoint and lets tests assert on recorded events.
type InMemoryRecorder struct {
	balanceReads     uint64
	grantsAccepted   uint64
	pointsGranted    int64
	pointsDebited    int64
	storeCallCount   uint64
	storeCallTotalNs int64
	gateDenied       uint64

	mu             sync.Mutex
	grantsRejected map[string]uint64
	storeErrors    map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		grantsRejected: make(map[string]uint64),
		storeErrors:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	rejected := make(map[string]uint64, len(m.grantsRejected))
	for k, v := range m.grantsRejected {
		rejected[k] = v
	}
	storeErrors := make(map[string]uint64, len(m.storeErrors))
	for k, v := range m.storeErrors {
		storeErrors[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		BalanceReads:     atomic.LoadUint64(&m.balanceReads),
		GrantsAccepted:   atomic.LoadUint64(&m.grantsAccepted),
		PointsGranted:    atomic.LoadInt64(&m.pointsGranted),
		PointsDebited:    atomic.LoadInt64(&m.pointsDebited),
		GrantsRejected:   rejected,
		StoreCallCount:   atomic.LoadUint64(&m.storeCallCount),
		StoreCallTotalNs: atomic.LoadInt64(&m.storeCallTotalNs),
		StoreErrors:      storeErrors,
		GateDenied:       atomic.LoadUint64(&m.gateDenied),
	}
}

// IncBalanceRead increments the balance read counter.
func (m *InMemoryRecorder) IncBalanceRead() {
	atomic.AddUint64(&m.balanceReads, 1)
}

// IncGrantAccepted counts an accepted write and its signed volume.
func (m *InMemoryRecorder) IncGrantAccepted(amount int64) {
	atomic.AddUint64(&m.grantsAccepted, 1)
	if amount >= 0 {
		atomic.AddInt64(&m.pointsGranted, amount)
	} else {
		atomic.AddInt64(&m.pointsDebited, -amount)
	}
}

// IncGrantRejected counts a rejected write by reason.
func (m *InMemoryRecorder) IncGrantRejected(reason string) {
	m.mu.Lock()
	m.grantsRejected[reason]++
	m.mu.Unlock()
}

// ObserveStoreDuration records store call latency.
func (m *InMemoryRecorder) ObserveStoreDuration(op string, duration time.Duration) {
	atomic.AddUint64(&m.storeCallCount, 1)
	atomic.AddInt64(&m.storeCallTotalNs, duration.Nanoseconds())
}

// IncStoreError counts a failed store call by operation.
func (m *InMemoryRecorder) IncStoreError(op string) {
	m.mu.Lock()
	m.storeErrors[op]++
	m.mu.Unlock()
}

// IncGateDenied counts requests refused by the access gate.
func (m *InMemoryRecorder) IncGateDenied() {
	atomic.AddUint64(&m.gateDenied, 1)
}
