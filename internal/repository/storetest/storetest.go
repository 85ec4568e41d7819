// Package storetest is a behavioural test suite every repository.Store
// backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/tenant"
	"github.com/pointsledger/pointsledger/internal/testutil"
)

// Backend is a store that can also provision customers.
type Backend interface {
	repository.Store
	repository.Provisioner
}

// Run executes the suite. newBackend must return a store with no data
// visible to other subtests, or data keyed so that unique emails isolate it.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("FindCustomer", func(t *testing.T) { testFindCustomer(t, newBackend(t)) })
	t.Run("SecondaryKeyMismatch", func(t *testing.T) { testSecondaryKeyMismatch(t, newBackend(t)) })
	t.Run("AppendPreservesOrder", func(t *testing.T) { testAppendPreservesOrder(t, newBackend(t)) })
	t.Run("AppendRejectsUnderflow", func(t *testing.T) { testAppendRejectsUnderflow(t, newBackend(t)) })
	t.Run("AppendIgnoresExpiredCredit", func(t *testing.T) { testAppendIgnoresExpiredCredit(t, newBackend(t)) })
	t.Run("AppendUnknownCustomer", func(t *testing.T) { testAppendUnknownCustomer(t, newBackend(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newBackend(t)) })
	t.Run("DuplicateCustomer", func(t *testing.T) { testDuplicateCustomer(t, newBackend(t)) })
}

func testFindCustomer(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()
	email := testutil.UniqueEmail("find")

	c := testutil.NewTestCustomer(t, email, "",
		testutil.Grant(50, now, -24*time.Hour),
		testutil.Grant(20, now, 24*time.Hour),
	)
	require.NoError(t, s.CreateCustomer(ctx, "companyA", c))

	got, err := s.FindCustomer(ctx, "companyA", tenant.LookupKey{Email: email})
	require.NoError(t, err)
	assert.Equal(t, email, got.Email)
	assert.Equal(t, "Silver", got.Tier)
	assert.Equal(t, []string{"priority support"}, got.TierBenefits)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, int64(50), got.Entries[0].Amount)
	assert.True(t, got.Entries[0].Expiry.Equal(c.Entries[0].Expiry))
	assert.Equal(t, int64(20), got.Balance(now))

	_, err = s.FindCustomer(ctx, "companyB", tenant.LookupKey{Email: email})
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
}

func testSecondaryKeyMismatch(t *testing.T, s Backend) {
	ctx := context.Background()
	email := testutil.UniqueEmail("member")

	require.NoError(t, s.CreateCustomer(ctx, "companyB", testutil.NewTestCustomer(t, email, "M-1")))

	_, err := s.FindCustomer(ctx, "companyB", tenant.LookupKey{Email: email, SecondaryID: "M-2"})
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)

	got, err := s.FindCustomer(ctx, "companyB", tenant.LookupKey{Email: email, SecondaryID: "M-1"})
	require.NoError(t, err)
	assert.Equal(t, "M-1", got.SecondaryID)
}

func testAppendPreservesOrder(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()
	email := testutil.UniqueEmail("order")
	key := tenant.LookupKey{Email: email, SecondaryID: "FF1"}

	require.NoError(t, s.CreateCustomer(ctx, "companyC", testutil.NewTestCustomer(t, email, "FF1",
		testutil.Grant(10, now, time.Hour))))

	for i, amount := range []int64{5, -3, 7} {
		e := testutil.Grant(amount, now, time.Duration(i+2)*time.Hour)
		e.FlightNumber = "SH100"
		e.RouteCode = "JFK-LAX"
		require.NoError(t, s.AppendEntry(ctx, "companyC", key, e, now))
	}

	got, err := s.FindCustomer(ctx, "companyC", key)
	require.NoError(t, err)
	require.Len(t, got.Entries, 4)

	amounts := make([]int64, len(got.Entries))
	for i, e := range got.Entries {
		amounts[i] = e.Amount
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, []int64{10, 5, -3, 7}, amounts)
	assert.Equal(t, "SH100", got.Entries[1].FlightNumber)
	assert.Equal(t, "JFK-LAX", got.Entries[1].RouteCode)
	assert.Equal(t, int64(19), got.Balance(now))
}

func testAppendRejectsUnderflow(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()
	email := testutil.UniqueEmail("underflow")
	key := tenant.LookupKey{Email: email}

	require.NoError(t, s.CreateCustomer(ctx, "companyA", testutil.NewTestCustomer(t, email, "",
		testutil.Grant(100, now, 30*24*time.Hour))))

	err := s.AppendEntry(ctx, "companyA", key, testutil.Grant(-150, now, 30*24*time.Hour), now)
	assert.ErrorIs(t, err, repository.ErrWouldUnderflow)

	got, err := s.FindCustomer(ctx, "companyA", key)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
	assert.Equal(t, int64(100), got.Balance(now))

	require.NoError(t, s.AppendEntry(ctx, "companyA", key, testutil.Grant(-100, now, time.Hour), now))
	got, err = s.FindCustomer(ctx, "companyA", key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance(now))
}

func testAppendIgnoresExpiredCredit(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()
	email := testutil.UniqueEmail("expired")
	key := tenant.LookupKey{Email: email}

	require.NoError(t, s.CreateCustomer(ctx, "companyA", testutil.NewTestCustomer(t, email, "",
		testutil.Grant(500, now, -time.Hour),
		testutil.Grant(10, now, time.Hour))))

	err := s.AppendEntry(ctx, "companyA", key, testutil.Grant(-20, now, time.Hour), now)
	assert.ErrorIs(t, err, repository.ErrWouldUnderflow)
}

func testAppendUnknownCustomer(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()

	err := s.AppendEntry(ctx, "companyA", tenant.LookupKey{Email: testutil.UniqueEmail("ghost")},
		testutil.Grant(10, now, time.Hour), now)
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
}

func testConcurrentDebits(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now()
	email := testutil.UniqueEmail("race")
	key := tenant.LookupKey{Email: email}

	require.NoError(t, s.CreateCustomer(ctx, "companyA", testutil.NewTestCustomer(t, email, "",
		testutil.Grant(100, now, time.Hour))))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AppendEntry(ctx, "companyA", key, testutil.Grant(-30, now, time.Hour), now)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.FindCustomer(ctx, "companyA", key)
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, int64(10), got.Balance(now))
	assert.GreaterOrEqual(t, ledger.CurrentBalance(got.Entries, now), int64(0))
}

func testDuplicateCustomer(t *testing.T, s Backend) {
	ctx := context.Background()
	email := testutil.UniqueEmail("dup")

	require.NoError(t, s.CreateCustomer(ctx, "companyB", testutil.NewTestCustomer(t, email, "M-1")))
	err := s.CreateCustomer(ctx, "companyB", testutil.NewTestCustomer(t, email, "M-1"))
	assert.ErrorIs(t, err, repository.ErrCustomerExists)
}
