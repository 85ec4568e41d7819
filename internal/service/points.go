// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/metrics"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// Service errors.
var (
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrBalanceWouldGoNegative = errors.New("balance would go negative")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// DefaultStoreTimeout bounds every store call when no timeout is configured.
const DefaultStoreTimeout = 3 * time.Second

// ValidationError lists every missing or malformed field of a request.
// It matches ErrInvalidRequest under errors.Is.
type ValidationError struct {
	Fields tenant.FieldErrors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// PointsService resolves tenants and customers and guards ledger writes.
type PointsService struct {
	tenants      *tenant.Registry
	store        repository.Store
	storeTimeout time.Duration
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewPointsService creates a new PointsService.
func NewPointsService(tenants *tenant.Registry, store repository.Store, storeTimeout time.Duration, recorder metrics.Recorder) *PointsService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &PointsService{
		tenants:      tenants,
		store:        store,
		storeTimeout: storeTimeout,
		metrics:      recorder,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *PointsService) WithClock(now func() time.Time) *PointsService {
	s.now = now
	return s
}

// BalanceResult is the outcome of GetBalance.
type BalanceResult struct {
	Tenant      tenant.Tenant
	Customer    *model.Customer
	Balance     int64
	History     []ledger.HistoryItem
	EvaluatedAt time.Time
}

// TotalsResult is the outcome of GetTotals.
type TotalsResult struct {
	Tenant      tenant.Tenant
	Customer    *model.Customer
	Summary     ledger.Summary
	EvaluatedAt time.Time
}

// GrantResult is the outcome of an accepted GrantPoints call.
type GrantResult struct {
	Accepted     bool
	Tenant       tenant.Tenant
	Entry        ledger.Entry
	BalanceAfter int64
	EvaluatedAt  time.Time
}

// EntryDraft carries the raw, unvalidated fields of a new ledger entry.
// A nil field was not supplied.
type EntryDraft struct {
	Amount        *string
	Expiry        *string
	TransactionID *string
	FlightNumber  *string
	RouteCode     *string
}

// ListTenants returns every configured program.
func (s *PointsService) ListTenants() []tenant.Tenant {
	return s.tenants.List()
}

// Tenant resolves a single program.
func (s *PointsService) Tenant(tenantID string) (tenant.Tenant, error) {
	t, err := s.tenants.Get(tenantID)
	if err != nil {
		return tenant.Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

// GetBalance returns the customer's ledger verbatim with its live balance.
func (s *PointsService) GetBalance(ctx context.Context, tenantID string, params tenant.Params) (*BalanceResult, error) {
	now := s.now().UTC()

	t, c, err := s.resolve(ctx, tenantID, params)
	if err != nil {
		return nil, err
	}

	s.metrics.IncBalanceRead()

	return &BalanceResult{
		Tenant:      t,
		Customer:    c,
		Balance:     ledger.CurrentBalance(c.Entries, now),
		History:     ledger.History(c.Entries, now),
		EvaluatedAt: now,
	}, nil
}

// GetTotals returns the aggregate view of the customer's ledger.
func (s *PointsService) GetTotals(ctx context.Context, tenantID string, params tenant.Params) (*TotalsResult, error) {
	now := s.now().UTC()

	t, c, err := s.resolve(ctx, tenantID, params)
	if err != nil {
		return nil, err
	}

	s.metrics.IncBalanceRead()

	return &TotalsResult{
		Tenant:      t,
		Customer:    c,
		Summary:     ledger.Summarize(c.Entries, now),
		EvaluatedAt: now,
	}, nil
}

// GrantPoints appends a grant or debit to the customer's ledger. Input is
// fully validated before the store is touched, and the write is refused
// if it would leave the live balance negative.
func (s *PointsService) GrantPoints(ctx context.Context, tenantID string, params tenant.Params, draft EntryDraft) (*GrantResult, error) {
	now := s.now().UTC()

	t, err := s.tenants.Get(tenantID)
	if err != nil {
		s.metrics.IncGrantRejected(metrics.ReasonNotFound)
		return nil, ErrTenantNotFound
	}

	var fieldErrs tenant.FieldErrors
	key, err := t.Variant.LookupKey(params)
	if err != nil {
		var fe tenant.FieldErrors
		if !errors.As(err, &fe) {
			return nil, err
		}
		fieldErrs = append(fieldErrs, fe...)
	}
	entry, entryErrs := parseDraft(t.Variant, draft)
	fieldErrs = append(fieldErrs, entryErrs...)
	if len(fieldErrs) > 0 {
		s.metrics.IncGrantRejected(metrics.ReasonInvalid)
		return nil, &ValidationError{Fields: fieldErrs}
	}

	c, err := s.findCustomer(ctx, t.ID, key)
	if err != nil {
		s.rejectFromError(err)
		return nil, err
	}

	if ledger.WouldUnderflow(c.Entries, now, entry.Amount) {
		s.metrics.IncGrantRejected(metrics.ReasonUnderflow)
		return nil, ErrBalanceWouldGoNegative
	}

	entry.ID = generateULID()
	if err := s.appendEntry(ctx, t.ID, key, entry, now); err != nil {
		s.rejectFromError(err)
		return nil, err
	}

	s.metrics.IncGrantAccepted(entry.Amount)

	return &GrantResult{
		Accepted:     true,
		Tenant:       t,
		Entry:        entry,
		BalanceAfter: ledger.CurrentBalance(ledger.Append(c.Entries, entry), now),
		EvaluatedAt:  now,
	}, nil
}

// resolve maps tenant id and params to the stored customer.
func (s *PointsService) resolve(ctx context.Context, tenantID string, params tenant.Params) (tenant.Tenant, *model.Customer, error) {
	t, err := s.tenants.Get(tenantID)
	if err != nil {
		return tenant.Tenant{}, nil, ErrTenantNotFound
	}

	key, err := t.Variant.LookupKey(params)
	if err != nil {
		var fe tenant.FieldErrors
		if errors.As(err, &fe) {
			return tenant.Tenant{}, nil, &ValidationError{Fields: fe}
		}
		return tenant.Tenant{}, nil, err
	}

	c, err := s.findCustomer(ctx, t.ID, key)
	if err != nil {
		return tenant.Tenant{}, nil, err
	}
	return t, c, nil
}

func (s *PointsService) findCustomer(ctx context.Context, tenantID string, key tenant.LookupKey) (*model.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	c, err := s.store.FindCustomer(ctx, tenantID, key)
	s.metrics.ObserveStoreDuration("find_customer", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		s.metrics.IncStoreError("find_customer")
		return nil, fmt.Errorf("%w: find customer: %w", ErrStoreUnavailable, err)
	}
	return c, nil
}

func (s *PointsService) appendEntry(ctx context.Context, tenantID string, key tenant.LookupKey, e ledger.Entry, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	err := s.store.AppendEntry(ctx, tenantID, key, e, now)
	s.metrics.ObserveStoreDuration("append_entry", time.Since(start))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrWouldUnderflow):
		return ErrBalanceWouldGoNegative
	case errors.Is(err, repository.ErrCustomerNotFound):
		return ErrCustomerNotFound
	default:
		s.metrics.IncStoreError("append_entry")
		return fmt.Errorf("%w: append entry: %w", ErrStoreUnavailable, err)
	}
}

func (s *PointsService) rejectFromError(err error) {
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		s.metrics.IncGrantRejected(metrics.ReasonNotFound)
	case errors.Is(err, ErrBalanceWouldGoNegative):
		s.metrics.IncGrantRejected(metrics.ReasonUnderflow)
	default:
		s.metrics.IncGrantRejected(metrics.ReasonUnavailable)
	}
}

// Accepted expiry layouts, most specific first. Date-only and minute
// precision values are read as UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseExpiry(raw string) (time.Time, bool) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDraft validates draft against the variant's required fields and
// builds the entry. Fields the variant does not carry are dropped.
func parseDraft(v tenant.Variant, d EntryDraft) (ledger.Entry, tenant.FieldErrors) {
	var (
		e    ledger.Entry
		errs tenant.FieldErrors
	)

	raw := map[string]*string{
		tenant.FieldAmount:        d.Amount,
		tenant.FieldExpiry:        d.Expiry,
		tenant.FieldTransactionID: d.TransactionID,
		tenant.FieldFlightNumber:  d.FlightNumber,
		tenant.FieldRouteCode:     d.RouteCode,
	}

	for _, field := range v.RequiredWriteFields() {
		p := raw[field]
		if p == nil || strings.TrimSpace(*p) == "" {
			errs = append(errs, tenant.FieldError{Field: field, Reason: tenant.ReasonRequired})
			continue
		}
		value := strings.TrimSpace(*p)

		switch field {
		case tenant.FieldAmount:
			amount, err := strconv.ParseInt(value, 10, 64)
			if err != nil || !ledger.AmountInRange(amount) {
				errs = append(errs, tenant.FieldError{Field: field, Reason: tenant.ReasonInvalid})
				continue
			}
			e.Amount = amount
		case tenant.FieldExpiry:
			expiry, ok := parseExpiry(value)
			if !ok {
				errs = append(errs, tenant.FieldError{Field: field, Reason: tenant.ReasonInvalid})
				continue
			}
			e.Expiry = expiry
		case tenant.FieldTransactionID:
			e.TransactionID = value
		case tenant.FieldFlightNumber:
			e.FlightNumber = value
		case tenant.FieldRouteCode:
			e.RouteCode = value
		}
	}

	return e, errs
}

// generateULID creates a new ULID string.
func generateULID() string {
	return ulid.Make().String()
}
