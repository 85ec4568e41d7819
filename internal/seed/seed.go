// Package seed loads customer fixtures from YAML and enrolls them through a
// repository.Provisioner. It backs cmd/seed and SEED_FILE on the memory
// backend.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// File is a fixtures document.
type File struct {
	Customers []Customer `yaml:"customers"`
}

// Customer is one fixture customer with its initial ledger.
type Customer struct {
	Tenant       string   `yaml:"tenant"`
	Email        string   `yaml:"email"`
	SecondaryID  string   `yaml:"secondaryId"`
	Tier         string   `yaml:"tier"`
	TierBenefits []string `yaml:"tierBenefits"`
	Entries      []Entry  `yaml:"entries"`
}

// Entry is one fixture ledger entry.
type Entry struct {
	Amount        int64     `yaml:"amount"`
	Expiry        time.Time `yaml:"expiry"`
	TransactionID string    `yaml:"transactionId"`
	FlightNumber  string    `yaml:"flightNumber"`
	RouteCode     string    `yaml:"routeCode"`
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Parse decodes a fixtures document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	return &f, nil
}

// LoadFile reads and decodes a fixtures file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks every fixture against the tenant registry before anything
// is written.
func (f *File) Validate(reg *tenant.Registry) error {
	var errs []error
	for i, c := range f.Customers {
		t, err := reg.Get(c.Tenant)
		if err != nil {
			errs = append(errs, fmt.Errorf("customer %d: tenant %q: %w", i, c.Tenant, err))
			continue
		}
		if _, err := t.Variant.LookupKey(tenant.Params{Email: c.Email, SecondaryID: c.SecondaryID}); err != nil {
			errs = append(errs, fmt.Errorf("customer %d (%s): %w", i, c.Email, err))
		}
		for j, e := range c.Entries {
			if e.Expiry.IsZero() {
				errs = append(errs, fmt.Errorf("customer %d (%s) entry %d: expiry is required", i, c.Email, j))
			}
			if !ledger.AmountInRange(e.Amount) {
				errs = append(errs, fmt.Errorf("customer %d (%s) entry %d: amount out of range", i, c.Email, j))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply enrolls every fixture customer. Customers that already exist are
// skipped, so Apply can be re-run against a populated store.
func Apply(ctx context.Context, p repository.Provisioner, reg *tenant.Registry, f *File, logger *slog.Logger) (Result, error) {
	var res Result

	if err := f.Validate(reg); err != nil {
		return res, err
	}

	for _, c := range f.Customers {
		t, _ := reg.Get(c.Tenant)
		customer := c.toModel(t.Variant)

		err := p.CreateCustomer(ctx, t.ID, customer)
		switch {
		case errors.Is(err, repository.ErrCustomerExists):
			res.Skipped++
			logger.Debug("customer exists, skipping",
				slog.String("tenant_id", t.ID),
				slog.String("customer_id", customer.ID),
			)
		case err != nil:
			return res, fmt.Errorf("creating customer for tenant %s: %w", t.ID, err)
		default:
			res.Created++
		}
	}

	return res, nil
}

// toModel builds the stored customer, dropping entry fields the variant
// does not carry.
func (c Customer) toModel(v tenant.Variant) *model.Customer {
	carries := make(map[string]bool)
	for _, f := range v.RequiredWriteFields() {
		carries[f] = true
	}

	entries := make([]ledger.Entry, 0, len(c.Entries))
	for _, e := range c.Entries {
		le := ledger.Entry{Amount: e.Amount, Expiry: e.Expiry.UTC()}
		if carries[tenant.FieldTransactionID] {
			le.TransactionID = e.TransactionID
		}
		if carries[tenant.FieldFlightNumber] {
			le.FlightNumber = e.FlightNumber
		}
		if carries[tenant.FieldRouteCode] {
			le.RouteCode = e.RouteCode
		}
		entries = append(entries, le)
	}

	secondary := c.SecondaryID
	if !v.HasSecondaryID() {
		secondary = ""
	}

	return &model.Customer{
		Email:        c.Email,
		SecondaryID:  secondary,
		Tier:         c.Tier,
		TierBenefits: c.TierBenefits,
		Entries:      entries,
	}
}
