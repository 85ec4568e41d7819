// Package ledger implements the per-customer points ledger: an append-only
// sequence of time-bounded grants and debits and the balance derived from it.
package ledger

import (
	"math"
	"time"
)

// MaxAmount bounds the magnitude of a single entry. Writes outside
// [-MaxAmount, MaxAmount] are rejected before they reach the store, which
// keeps every realistic balance far from the int64 limits.
const MaxAmount int64 = 1_000_000_000_000_000

// AmountInRange reports whether amount fits within MaxAmount.
func AmountInRange(amount int64) bool {
	return amount >= -MaxAmount && amount <= MaxAmount
}

// Entry is one immutable grant (positive amount) or debit (negative amount).
// Expiry is always set; the variant fields are empty unless the owning
// tenant's schema requires them.
type Entry struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	Expiry        time.Time `json:"expiry"`
	TransactionID string    `json:"transactionId,omitempty"`
	FlightNumber  string    `json:"flightNumber,omitempty"`
	RouteCode     string    `json:"routeCode,omitempty"`
}

// ActiveAt reports whether the entry still counts toward the balance at t.
// An entry expiring exactly at t no longer counts.
func (e Entry) ActiveAt(t time.Time) bool {
	return e.Expiry.After(t)
}

// Status is the read-time state of an entry. It is never persisted.
type Status string

const (
	StatusActive  Status = "Active"
	StatusExpired Status = "Expired"
)

// StatusAt derives the entry status at t.
func (e Entry) StatusAt(t time.Time) Status {
	if e.ActiveAt(t) {
		return StatusActive
	}
	return StatusExpired
}

// CurrentBalance sums the amounts of all entries still active at now.
// Grants and debits are accumulated separately and each side saturates at
// the int64 limit, so the result never wraps.
func CurrentBalance(entries []Entry, now time.Time) int64 {
	var credits, debits int64
	for _, e := range entries {
		if !e.ActiveAt(now) {
			continue
		}
		if e.Amount >= 0 {
			credits = AddSaturating(credits, e.Amount)
		} else {
			debits = AddSaturating(debits, e.Amount)
		}
	}
	return credits + debits
}

// AddSaturating returns a+b clamped to the int64 range.
func AddSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

// WouldUnderflow reports whether applying delta at now leaves the live
// balance below zero.
func WouldUnderflow(entries []Entry, now time.Time, delta int64) bool {
	return BalanceUnderflows(CurrentBalance(entries, now), delta)
}

// BalanceUnderflows reports whether balance+delta is negative, without
// wrapping on overflow.
func BalanceUnderflows(balance, delta int64) bool {
	return AddSaturating(balance, delta) < 0
}

// Append returns a new ledger with e as its last entry. The input slice is
// neither reordered nor written to.
func Append(entries []Entry, e Entry) []Entry {
	out := make([]Entry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, e)
}

// HistoryItem pairs an entry with its status at evaluation time.
type HistoryItem struct {
	Entry
	Status Status `json:"status"`
}

// History lists entries in insertion order with their derived status.
// Expired entries are kept.
func History(entries []Entry, now time.Time) []HistoryItem {
	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{Entry: e, Status: e.StatusAt(now)}
	}
	return items
}

// Summary aggregates a ledger at a single instant.
type Summary struct {
	Balance      int64      `json:"balance"`
	ExpiredTotal int64      `json:"expiredTotal"`
	ActiveCount  int        `json:"activeCount"`
	ExpiredCount int        `json:"expiredCount"`
	NextExpiry   *time.Time `json:"nextExpiry,omitempty"`
}

// Summarize computes balance and per-status counts in one pass. NextExpiry
// is the earliest expiry among entries still active at now.
func Summarize(entries []Entry, now time.Time) Summary {
	s := Summary{Balance: CurrentBalance(entries, now)}
	for _, e := range entries {
		if !e.ActiveAt(now) {
			s.ExpiredTotal = AddSaturating(s.ExpiredTotal, e.Amount)
			s.ExpiredCount++
			continue
		}
		s.ActiveCount++
		if s.NextExpiry == nil || e.Expiry.Before(*s.NextExpiry) {
			exp := e.Expiry
			s.NextExpiry = &exp
		}
	}
	return s
}
