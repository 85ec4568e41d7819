package seed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsledger/pointsledger/internal/repository/memory"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

const fixtures = `
customers:
  - tenant: companyA
    email: alice@example.com
    tier: Gold
    tierBenefits: [Free shipping]
    entries:
      - amount: 100
        expiry: 2030-01-01
      - amount: -20
        expiry: 2030-01-01T00:00:00Z
        transactionId: dropped-for-base
  - tenant: companyC
    email: carol@example.com
    secondaryId: FF-1
    entries:
      - amount: 1200
        expiry: 2030-06-01
        flightNumber: SH101
        routeCode: JFK-LHR
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApply(t *testing.T) {
	f, err := Parse([]byte(fixtures))
	require.NoError(t, err)

	store := memory.New()
	reg := tenant.DefaultRegistry()
	ctx := context.Background()

	res, err := Apply(ctx, store, reg, f, discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	alice, err := store.FindCustomer(ctx, "companyA", tenant.LookupKey{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Gold", alice.Tier)
	require.Len(t, alice.Entries, 2)
	assert.Equal(t, int64(80), alice.Balance(time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, alice.Entries[1].TransactionID)
	assert.NotEmpty(t, alice.Entries[0].ID)

	carol, err := store.FindCustomer(ctx, "companyC", tenant.LookupKey{Email: "carol@example.com", SecondaryID: "FF-1"})
	require.NoError(t, err)
	assert.Equal(t, "SH101", carol.Entries[0].FlightNumber)
	assert.True(t, carol.Entries[0].Expiry.Equal(time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)))

	// re-running is a no-op
	res, err = Apply(ctx, store, reg, f, discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)
}

func TestValidate(t *testing.T) {
	f, err := Parse([]byte(`
customers:
  - tenant: nope
    email: a@example.com
  - tenant: companyB
    email: b@example.com
  - tenant: companyA
    email: c@example.com
    entries:
      - amount: 5
`))
	require.NoError(t, err)

	err = f.Validate(tenant.DefaultRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tenant "nope"`)
	assert.Contains(t, err.Error(), "membershipId")
	assert.Contains(t, err.Error(), "expiry is required")

	// nothing is written when validation fails
	store := memory.New()
	_, err = Apply(context.Background(), store, tenant.DefaultRegistry(), f, discard())
	require.Error(t, err)
	_, err = store.FindCustomer(context.Background(), "companyA", tenant.LookupKey{Email: "c@example.com"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Customers, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDemoFixtures(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "deploy", "seed.yaml"))
	require.NoError(t, err)
	require.NoError(t, f.Validate(tenant.DefaultRegistry()))

	res, err := Apply(context.Background(), memory.New(), tenant.DefaultRegistry(), f, discard())
	require.NoError(t, err)
	assert.Equal(t, len(f.Customers), res.Created)
}
