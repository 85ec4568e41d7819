// Package memory provides an in-process Store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// compile-time interface checks
var (
	_ repository.Store       = (*Store)(nil)
	_ repository.Provisioner = (*Store)(nil)
)

// Store keeps customers per tenant in enrollment order.
type Store struct {
	mu        sync.RWMutex
	customers map[string][]*model.Customer
}

// New returns an empty Store.
func New() *Store {
	return &Store{customers: make(map[string][]*model.Customer)}
}

// find returns the first match. Callers must hold s.mu.
func (s *Store) find(tenantID string, key tenant.LookupKey) *model.Customer {
	for _, c := range s.customers[tenantID] {
		if key.Matches(c.Email, c.SecondaryID) {
			return c
		}
	}
	return nil
}

func (s *Store) FindCustomer(_ context.Context, tenantID string, key tenant.LookupKey) (*model.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.find(tenantID, key)
	if c == nil {
		return nil, repository.ErrCustomerNotFound
	}
	return c.Clone(), nil
}

func (s *Store) AppendEntry(_ context.Context, tenantID string, key tenant.LookupKey, e ledger.Entry, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.find(tenantID, key)
	if c == nil {
		return repository.ErrCustomerNotFound
	}
	if ledger.WouldUnderflow(c.Entries, now, e.Amount) {
		return repository.ErrWouldUnderflow
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	c.Entries = ledger.Append(c.Entries, e)
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, tenantID string, c *model.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers[tenantID] {
		if existing.Email == c.Email && existing.SecondaryID == c.SecondaryID {
			return repository.ErrCustomerExists
		}
	}

	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.TenantID = tenantID
	for i := range c.Entries {
		if c.Entries[i].ID == "" {
			c.Entries[i].ID = ulid.Make().String()
		}
	}

	s.customers[tenantID] = append(s.customers[tenantID], c.Clone())
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
