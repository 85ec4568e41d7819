package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// Common errors for store operations. Every backend returns these so callers
// can map them with errors.Is.
var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrCustomerExists   = errors.New("customer already exists")
	ErrWouldUnderflow   = errors.New("append would drive balance below zero")
)

// Store is the persistence surface the points service depends on.
type Store interface {
	// FindCustomer returns the first customer of tenantID matching key,
	// with its ledger in insertion order.
	FindCustomer(ctx context.Context, tenantID string, key tenant.LookupKey) (*model.Customer, error)

	// AppendEntry atomically appends e to the matching customer's ledger,
	// provided the live balance at now plus e.Amount stays non-negative.
	// It returns ErrWouldUnderflow without writing otherwise.
	AppendEntry(ctx context.Context, tenantID string, key tenant.LookupKey, e ledger.Entry, now time.Time) error

	Ping(ctx context.Context) error
}

// Provisioner enrolls customers. It is used by seeding and tests, never by
// request handling.
type Provisioner interface {
	CreateCustomer(ctx context.Context, tenantID string, c *model.Customer) error
}

// compile-time interface checks
var (
	_ Store       = (*Repository)(nil)
	_ Provisioner = (*Repository)(nil)
)
