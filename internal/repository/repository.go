// Package repository provides the persistence layer for customers and their
// ledgers. Repository is the PostgreSQL implementation; the mongo and memory
// subpackages provide the other backends.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing for pools opened by New. Ledger writes hold a row lock for
// the length of one transaction, so a small pool is enough per instance.
const (
	maxConns        = 10
	minConns        = 2
	maxConnIdleTime = 5 * time.Minute
)

// Repository is the PostgreSQL ledger store.
type Repository struct {
	pool *pgxpool.Pool
	// owned is false when the pool was handed in by the caller.
	owned bool
}

// New opens a pool for databaseURL and verifies it is reachable. Close
// releases the pool.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	return &Repository{pool: pool, owned: true}, nil
}

// NewWithPool builds a Repository over a pool the caller already manages,
// such as one shared with migrations or test fixtures. Close leaves the
// pool open.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool if New opened it.
func (r *Repository) Close() {
	if r.owned {
		r.pool.Close()
	}
}

// Pool returns the underlying connection pool for fixtures and admin
// queries.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
