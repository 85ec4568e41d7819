// Command seed enrolls customers from a YAML fixtures file into the
// configured ledger store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pointsledger/pointsledger/internal/repository/backend"
	"github.com/pointsledger/pointsledger/internal/seed"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

func main() {
	var (
		file        = flag.String("file", "deploy/seed.yaml", "Fixtures file")
		kind        = flag.String("backend", envOr("STORE_BACKEND", backend.Postgres), "Store backend: postgres or mongo")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		mongoURL    = flag.String("mongo-url", os.Getenv("MONGO_URL"), "MongoDB connection string")
		mongoDB     = flag.String("mongo-database", envOr("MONGO_DATABASE", "loyalty-program"), "MongoDB database")
		mongoColl   = flag.String("mongo-collection", envOr("MONGO_COLLECTION", "loyalty-points"), "MongoDB collection")
		tenantsFile = flag.String("tenants", os.Getenv("TENANTS_FILE"), "Tenants file; built-in programs when empty")
		dryRun      = flag.Bool("dry-run", false, "Validate fixtures without writing")
		timeout     = flag.Duration("timeout", time.Minute, "Overall timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if *kind == backend.Memory {
		fmt.Fprintln(os.Stderr, "the memory backend is seeded by the API server via SEED_FILE")
		os.Exit(1)
	}

	reg := tenant.DefaultRegistry()
	if *tenantsFile != "" {
		var err error
		reg, err = tenant.LoadRegistry(*tenantsFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tenants:", err)
			os.Exit(1)
		}
	}

	fixtures, err := seed.LoadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := fixtures.Validate(reg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid fixtures:", err)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("%d customers valid\n", len(fixtures.Customers))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := backend.Open(ctx, backend.Options{
		Kind:            *kind,
		Migrate:         true,
		DatabaseURL:     *databaseURL,
		MongoURL:        *mongoURL,
		MongoDatabase:   *mongoDB,
		MongoCollection: *mongoColl,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close(context.Background()) }()

	res, err := seed.Apply(ctx, store.Provisioner, reg, fixtures, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}

	fmt.Printf("created %d, skipped %d existing\n", res.Created, res.Skipped)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
