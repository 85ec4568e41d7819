package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncBalanceRead()
	m.IncBalanceRead()
	m.IncGrantAccepted(100)
	m.IncGrantAccepted(-30)
	m.IncGrantRejected(ReasonUnderflow)
	m.IncGrantRejected(ReasonUnderflow)
	m.IncGrantRejected(ReasonInvalid)
	m.ObserveStoreDuration("find_customer", 2*time.Millisecond)
	m.IncStoreError("append_entry")
	m.IncGateDenied()

	snap := m.Snapshot()

	if snap.BalanceReads != 2 {
		t.Errorf("BalanceReads = %d, want 2", snap.BalanceReads)
	}
	if snap.GrantsAccepted != 2 || snap.PointsGranted != 100 || snap.PointsDebited != 30 {
		t.Errorf("grant counters = (%d, %d, %d), want (2, 100, 30)",
			snap.GrantsAccepted, snap.PointsGranted, snap.PointsDebited)
	}
	if snap.GrantsRejected[ReasonUnderflow] != 2 || snap.GrantsRejected[ReasonInvalid] != 1 {
		t.Errorf("GrantsRejected = %v", snap.GrantsRejected)
	}
	if snap.StoreCallCount != 1 || snap.StoreCallTotalNs != int64(2*time.Millisecond) {
		t.Errorf("store duration = (%d, %d)", snap.StoreCallCount, snap.StoreCallTotalNs)
	}
	if snap.StoreErrors["append_entry"] != 1 {
		t.Errorf("StoreErrors = %v", snap.StoreErrors)
	}
	if snap.GateDenied != 1 {
		t.Errorf("GateDenied = %d, want 1", snap.GateDenied)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncGrantRejected(ReasonNotFound)

	snap := m.Snapshot()
	snap.GrantsRejected[ReasonNotFound] = 99

	if got := m.Snapshot().GrantsRejected[ReasonNotFound]; got != 1 {
		t.Errorf("snapshot map aliases recorder state: %d", got)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncGrantRejected(ReasonInvalid)
			m.IncBalanceRead()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.BalanceReads != 50 || snap.GrantsRejected[ReasonInvalid] != 50 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestNoopRecorder(t *testing.T) {
	t.Parallel()

	r := NewNoop()
	r.IncBalanceRead()
	r.IncGrantAccepted(1)
	r.IncGrantRejected(ReasonInvalid)
	r.ObserveStoreDuration("x", time.Second)
	r.IncStoreError("x")
	r.IncGateDenied()
}
