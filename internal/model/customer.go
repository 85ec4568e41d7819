// Package model defines domain entities for the application.
package model

import (
	"time"

	"github.com/pointsledger/pointsledger/internal/ledger"
)

// Customer is an enrolled member of one tenant program. Entries is the
// customer's ledger in insertion order.
type Customer struct {
	ID           string         `json:"id" yaml:"id"`
	TenantID     string         `json:"tenantId" yaml:"-"`
	Email        string         `json:"email" yaml:"email"`
	SecondaryID  string         `json:"secondaryId,omitempty" yaml:"secondaryId"`
	Tier         string         `json:"tier,omitempty" yaml:"tier"`
	TierBenefits []string       `json:"tierBenefits,omitempty" yaml:"tierBenefits"`
	Entries      []ledger.Entry `json:"entries" yaml:"entries"`
	CreatedAt    time.Time      `json:"createdAt" yaml:"-"`
}

// Balance returns the live balance at now.
func (c *Customer) Balance(now time.Time) int64 {
	return ledger.CurrentBalance(c.Entries, now)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	out := *c
	if c.TierBenefits != nil {
		out.TierBenefits = append([]string(nil), c.TierBenefits...)
	}
	if c.Entries != nil {
		out.Entries = append([]ledger.Entry(nil), c.Entries...)
	}
	return &out
}
