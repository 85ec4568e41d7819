package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

const (
	// secondary_id is '' for email-only tenants; an empty key component
	// therefore matches any stored value.
	selectCustomerSQL = `
		SELECT id, tenant_id, email, secondary_id, tier, tier_benefits, created_at
		FROM customers
		WHERE tenant_id = $1 AND email = $2 AND ($3 = '' OR secondary_id = $3)
		ORDER BY created_at, id
		LIMIT 1
	`

	lockCustomerSQL = `
		SELECT id
		FROM customers
		WHERE tenant_id = $1 AND email = $2 AND ($3 = '' OR secondary_id = $3)
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`

	selectEntriesSQL = `
		SELECT id, amount, expiry, transaction_id, flight_number, route_code
		FROM ledger_entries
		WHERE customer_id = $1
		ORDER BY seq
	`

	liveBalanceSQL = `
		SELECT LEAST(GREATEST(COALESCE(SUM(amount), 0), -9223372036854775808), 9223372036854775807)::BIGINT
		FROM ledger_entries
		WHERE customer_id = $1 AND expiry > $2
	`

	insertEntrySQL = `
		INSERT INTO ledger_entries (id, customer_id, amount, expiry, transaction_id, flight_number, route_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	insertCustomerSQL = `
		INSERT INTO customers (id, tenant_id, email, secondary_id, tier, tier_benefits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
)

// FindCustomer loads a customer and its full ledger.
func (r *Repository) FindCustomer(ctx context.Context, tenantID string, key tenant.LookupKey) (*model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, selectCustomerSQL, tenantID, key.Email, key.SecondaryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	rows, err := r.pool.Query(ctx, selectEntriesSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	c.Entries = make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		c.Entries = append(c.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return c, nil
}

// AppendEntry appends e inside a transaction that holds the customer row
// lock, so concurrent appends for one customer are serialized and the
// balance check sees every committed entry.
func (r *Repository) AppendEntry(ctx context.Context, tenantID string, key tenant.LookupKey, e ledger.Entry, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var customerID string
	err = tx.QueryRow(ctx, lockCustomerSQL, tenantID, key.Email, key.SecondaryID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("failed to lock customer: %w", err)
	}

	var balance int64
	if err := tx.QueryRow(ctx, liveBalanceSQL, customerID, now).Scan(&balance); err != nil {
		return fmt.Errorf("failed to compute balance: %w", err)
	}
	if ledger.BalanceUnderflows(balance, e.Amount) {
		return ErrWouldUnderflow
	}

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	_, err = tx.Exec(ctx, insertEntrySQL,
		e.ID,
		customerID,
		e.Amount,
		e.Expiry,
		e.TransactionID,
		e.FlightNumber,
		e.RouteCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

// CreateCustomer enrolls c under tenantID together with any seed entries.
func (r *Repository) CreateCustomer(ctx context.Context, tenantID string, c *model.Customer) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.TenantID = tenantID

	benefits := c.TierBenefits
	if benefits == nil {
		benefits = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertCustomerSQL,
		c.ID,
		tenantID,
		c.Email,
		c.SecondaryID,
		c.Tier,
		pq.Array(benefits),
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCustomerExists
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	for i := range c.Entries {
		e := &c.Entries[i]
		if e.ID == "" {
			e.ID = ulid.Make().String()
		}
		_, err := tx.Exec(ctx, insertEntrySQL,
			e.ID, c.ID, e.Amount, e.Expiry, e.TransactionID, e.FlightNumber, e.RouteCode)
		if err != nil {
			return fmt.Errorf("failed to insert seed entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit customer: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	var benefits []string
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Email,
		&c.SecondaryID,
		&c.Tier,
		pq.Array(&benefits),
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(benefits) > 0 {
		c.TierBenefits = benefits
	}
	return &c, nil
}

func scanEntry(rows pgx.Rows) (ledger.Entry, error) {
	var e ledger.Entry
	err := rows.Scan(
		&e.ID,
		&e.Amount,
		&e.Expiry,
		&e.TransactionID,
		&e.FlightNumber,
		&e.RouteCode,
	)
	e.Expiry = e.Expiry.UTC()
	return e, err
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
