package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/ledger"
)

type fixedHolds struct {
	held int64
	err  error
}

func (f fixedHolds) HeldAmount(context.Context, string) (int64, error) {
	return f.held, f.err
}

func seed(t *testing.T, e *ledger.Engine, key ledger.AccountKey, amount int64) {
	t.Helper()
	_, err := e.Apply(context.Background(), ledger.Posting{
		Key: key, Type: ledger.TxAdjusted, Amount: amount,
		Actor: ledger.Actor{Type: "ADMIN", ID: "a-1"},
	})
	require.NoError(t, err)
}

func TestBalanceCreatesEmptyAccount(t *testing.T) {
	svc := NewService(ledger.NewEngine(ledger.NewInMemory(), ledger.Options{}), nil)

	snap, err := svc.Balance(context.Background(), ledger.PointsKey(ledger.OwnerUser, "u-new"))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.AccountID)
	assert.Zero(t, snap.Balance)
	assert.Zero(t, snap.Available)
}

func TestBalanceSubtractsHeldFromVendorWallet(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewInMemory(), ledger.Options{})
	svc := NewService(engine, fixedHolds{held: 300})
	ctx := context.Background()

	wallet := ledger.WalletKey("v-1")
	seed(t, engine, wallet, 1_000)
	snap, err := svc.Balance(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), snap.Balance)
	assert.Equal(t, int64(300), snap.Held)
	assert.Equal(t, int64(700), snap.Available)

	points := ledger.PointsKey(ledger.OwnerVendor, "v-1")
	seed(t, engine, points, 50)
	snap, err = svc.Balance(ctx, points)
	require.NoError(t, err)
	assert.Zero(t, snap.Held)
	assert.Equal(t, int64(50), snap.Available)
}

func TestBalanceHoldSourceFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(ledger.NewEngine(ledger.NewInMemory(), ledger.Options{}), fixedHolds{err: boom})

	_, err := svc.Balance(context.Background(), ledger.WalletKey("v-2"))
	require.ErrorIs(t, err, boom)
}
