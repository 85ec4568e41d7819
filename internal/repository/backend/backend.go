// Package backend opens the ledger store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/repository/memory"
	"github.com/pointsledger/pointsledger/internal/repository/mongo"
)

// Store kinds.
const (
	Postgres = "postgres"
	Mongo    = "mongo"
	Memory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind    string
	Migrate bool

	DatabaseURL string

	MongoURL        string
	MongoDatabase   string
	MongoCollection string
}

// Backend is an opened store.
type Backend struct {
	Name        string
	Store       repository.Store
	Provisioner repository.Provisioner
	close       func(ctx context.Context) error
}

// Close releases the backend's connections.
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// Open connects to the backend named by opts.Kind, applying migrations
// first when opts.Migrate is set.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	switch opts.Kind {
	case Postgres:
		if opts.Migrate {
			if err := repository.Migrate(opts.DatabaseURL); err != nil {
				return nil, err
			}
		}
		repo, err := repository.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:        Postgres,
			Store:       repo,
			Provisioner: repo,
			close: func(context.Context) error {
				repo.Close()
				return nil
			},
		}, nil

	case Mongo:
		s, err := mongo.New(ctx, opts.MongoURL, opts.MongoDatabase, opts.MongoCollection)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close(ctx)
				return nil, err
			}
		}
		return &Backend{
			Name:        Mongo,
			Store:       s,
			Provisioner: s,
			close:       s.Close,
		}, nil

	case Memory:
		s := memory.New()
		return &Backend{
			Name:        Memory,
			Store:       s,
			Provisioner: s,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}
