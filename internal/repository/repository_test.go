package repository_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/repository/storetest"
	"github.com/pointsledger/pointsledger/internal/testutil"
)

// newTestRepository wraps a test-owned pool so fixtures and the store
// under test share one set of connections.
func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	ctx := context.Background()
	url := testutil.PostgresURL(t)

	require.NoError(t, repository.Migrate(url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unlock() })

	require.NoError(t, testutil.TruncateLedger(ctx, pool))
	return repository.NewWithPool(pool)
}

func TestRepository_StoreContract(t *testing.T) {
	testutil.SkipIfShort(t)

	repo := newTestRepository(t)
	storetest.Run(t, func(t *testing.T) storetest.Backend { return repo })
}

func TestRepository_Ping(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Ping(context.Background()))
}

func TestRepository_CloseLeavesBorrowedPoolOpen(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	repo.Close()
	require.NoError(t, repo.Pool().Ping(ctx))
	require.NoError(t, repo.Ping(ctx))
}

func TestNew_OwnsPool(t *testing.T) {
	url := testutil.PostgresURL(t)
	ctx := context.Background()

	repo, err := repository.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, repo.Ping(ctx))

	repo.Close()
	require.Error(t, repo.Ping(ctx))
}

func TestNew_BadURL(t *testing.T) {
	_, err := repository.New(context.Background(), "postgres://%zz")
	require.ErrorContains(t, err, "parse database url")
}

func TestMigrate_Idempotent(t *testing.T) {
	url := testutil.PostgresURL(t)

	require.NoError(t, repository.Migrate(url))
	require.NoError(t, repository.Migrate(url))
}

func TestMigrate_DownAndUp(t *testing.T) {
	url := testutil.PostgresURL(t)
	ctx := context.Background()

	require.NoError(t, repository.Migrate(url))
	require.NoError(t, repository.MigrateDown(url))
	require.NoError(t, repository.Migrate(url))

	repo, err := repository.New(ctx, url)
	require.NoError(t, err)
	defer repo.Close()

	var exists bool
	err = repo.Pool().QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'ledger_entries')",
	).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists)
}
