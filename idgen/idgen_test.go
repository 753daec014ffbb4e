package idgen_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/idgen"
)

var march10 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return march10 }

func TestGenerate_DefaultFormats(t *testing.T) {
	// GIVEN: A generator with a fixed clock
	// WHEN: Generating one ID of each kind
	// THEN: Each matches its documented shape

	g := idgen.New(idgen.WithClock(fixedClock), idgen.WithSeed(1))
	ctx := context.Background()

	acct, err := g.Generate(ctx, idgen.KindAccount, nil)
	require.NoError(t, err)
	assert.Len(t, acct, 10)
	assert.Equal(t, "100", acct[:3])

	app, err := g.Generate(ctx, idgen.KindApplication, nil)
	require.NoError(t, err)
	assert.Len(t, app, 12)
	assert.Equal(t, "LA2025", app[:6])

	txn, err := g.Generate(ctx, idgen.KindTransaction, nil)
	require.NoError(t, err)
	assert.Len(t, txn, 17)
	assert.Equal(t, "TXN20250310", txn[:11])

	formats := idgen.DefaultFormats()
	assert.True(t, formats[idgen.KindAccount].Matches(acct))
	assert.True(t, formats[idgen.KindApplication].Matches(app))
	assert.True(t, formats[idgen.KindTransaction].Matches(txn))
}

func TestGenerate_TenThousandTransactionIDs_NoDuplicates(t *testing.T) {
	// GIVEN: An exists-check backed by the set of IDs issued so far
	// WHEN: Generating 10,000 transaction IDs in sequence
	// THEN: No ID is issued twice

	g := idgen.New(idgen.WithClock(fixedClock))
	ctx := context.Background()
	issued := make(map[string]bool)
	exists := func(_ context.Context, c string) (bool, error) { return issued[c], nil }

	for i := 0; i < 10000; i++ {
		id, err := g.Generate(ctx, idgen.KindTransaction, exists)
		require.NoError(t, err)
		require.False(t, issued[id], "duplicate id %s", id)
		issued[id] = true
	}
	assert.Len(t, issued, 10000)
}

func TestGenerate_AlwaysExists_Exhausts(t *testing.T) {
	// GIVEN: An exists-check that always reports a collision
	// WHEN: Generating
	// THEN: ErrGenerationExhausted after exactly MaxAttempts checks

	g := idgen.New(idgen.WithMaxAttempts(25))
	calls := 0
	exists := func(_ context.Context, _ string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := g.Generate(context.Background(), idgen.KindAccount, exists)

	require.ErrorIs(t, err, idgen.ErrGenerationExhausted)
	var exhausted *idgen.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 25, exhausted.Attempts)
	assert.Equal(t, 25, calls)
}

func TestGenerate_DefaultCap(t *testing.T) {
	g := idgen.New()
	assert.Equal(t, idgen.DefaultMaxAttempts, g.MaxAttempts())

	_, err := g.Generate(context.Background(), idgen.KindTransaction,
		func(context.Context, string) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, idgen.ErrGenerationExhausted)
}

func TestGenerate_ExistsErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	g := idgen.New()

	_, err := g.Generate(context.Background(), idgen.KindAccount,
		func(context.Context, string) (bool, error) { return false, boom })

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, idgen.ErrGenerationExhausted)
}

func TestGenerate_RetriesPastCollisions(t *testing.T) {
	// GIVEN: The first three candidates collide
	// WHEN: Generating
	// THEN: The fourth candidate is returned

	g := idgen.New()
	calls := 0
	id, err := g.Generate(context.Background(), idgen.KindAccount,
		func(context.Context, string) (bool, error) {
			calls++
			return calls <= 3, nil
		})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 4, calls)
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := idgen.New().Generate(context.Background(), idgen.Kind("voucher"), nil)
	assert.ErrorIs(t, err, idgen.ErrUnknownKind)
}

func TestGenerate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idgen.New().Generate(ctx, idgen.KindAccount, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateFormat_InvalidWidth(t *testing.T) {
	_, err := idgen.New().GenerateFormat(context.Background(), idgen.Format{Prefix: "X", Digits: 0}, nil)
	assert.Error(t, err)
}

func TestGenerate_ConcurrentCallers(t *testing.T) {
	// GIVEN: 8 goroutines sharing a generator and a locked issued-set
	// WHEN: Each generates 500 account numbers
	// THEN: All 4,000 are distinct

	g := idgen.New()
	var mu sync.Mutex
	issued := make(map[string]bool)
	exists := func(_ context.Context, c string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if issued[c] {
			return true, nil
		}
		issued[c] = true // reserve
		return false, nil
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_, err := g.Generate(context.Background(), idgen.KindAccount, exists)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, issued, 4000)
}

func TestWithFormat_Override(t *testing.T) {
	g := idgen.New(idgen.WithClock(fixedClock), idgen.WithFormat(idgen.KindTransaction,
		idgen.Format{Prefix: "TXN", DateLayout: "20060102", Digits: 4}))

	id, err := g.Generate(context.Background(), idgen.KindTransaction, nil)
	require.NoError(t, err)
	assert.Len(t, id, 15)
}
