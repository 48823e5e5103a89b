package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/infra"
	"github.com/congo-pay/loyalty/internal/logging"
)

// newPostgresEngine connects to LEDGER_TEST_DATABASE_URL or skips the test.
func newPostgresEngine(t *testing.T) *Engine {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool, logging.Discard()))
	return NewEngine(NewPostgresStore(pool), Options{})
}

func TestPostgresApplyAndReplay(t *testing.T) {
	e := newPostgresEngine(t)
	ctx := context.Background()
	key := PointsKey(OwnerUser, uuid.NewString())

	_, err := e.Apply(ctx, Posting{Key: key, Type: TxAdjusted, Amount: 1_000, Actor: admin, Description: "promo"})
	require.NoError(t, err)
	tx, err := e.Apply(ctx, Posting{Key: key, Type: TxRedeemed, Amount: -400, IdempotencyKey: "redeem:O9"})
	require.NoError(t, err)
	again, err := e.Apply(ctx, Posting{Key: key, Type: TxRedeemed, Amount: -400, IdempotencyKey: "redeem:O9"})
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)

	_, err = e.Apply(ctx, Posting{Key: key, Type: TxRedeemed, Amount: -700})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	rep, err := e.Verify(ctx, key)
	require.NoError(t, err)
	assert.True(t, rep.Consistent(), rep.Problems)
	assert.Equal(t, int64(600), rep.StoredBalance)
	assert.Equal(t, 2, rep.Transactions)

	page, err := e.Transactions(ctx, key, TransactionFilter{Type: TxRedeemed})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestPostgresConcurrentEnginesShareAccount(t *testing.T) {
	first := newPostgresEngine(t)
	// A second engine has its own in-process locks, standing in for another
	// replica; only the version check keeps them consistent.
	second := NewEngine(first.store, Options{MaxAttempts: 20})
	ctx := context.Background()
	key := WalletKey(uuid.NewString())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := first
			if i%2 == 1 {
				e = second
			}
			_, err := e.Apply(ctx, Posting{Key: key, Type: TxCommission, Amount: 5})
			if err != nil && !errors.Is(err, ErrTransientFailure) {
				t.Errorf("apply: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rep, err := first.Verify(ctx, key)
	require.NoError(t, err)
	assert.True(t, rep.Consistent(), rep.Problems)
	assert.Equal(t, int64(rep.Transactions)*5, rep.StoredBalance)
}
