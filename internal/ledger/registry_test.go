package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateAccountConcurrentFirstAccess(t *testing.T) {
	store := NewInMemory()
	reg := NewRegistry(store, Options{})
	key := PointsKey(OwnerUser, "u-new")

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := reg.GetOrCreateAccount(context.Background(), key)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = acct.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	acct, err := store.Account(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, ids[0], acct.ID)
	assert.Zero(t, acct.Balance)
}

func TestGetOrCreateAccountSeparatesCurrencyClasses(t *testing.T) {
	reg := NewRegistry(NewInMemory(), Options{})
	ctx := context.Background()

	points, err := reg.GetOrCreateAccount(ctx, PointsKey(OwnerVendor, "v-1"))
	require.NoError(t, err)
	wallet, err := reg.GetOrCreateAccount(ctx, WalletKey("v-1"))
	require.NoError(t, err)
	assert.NotEqual(t, points.ID, wallet.ID)
}

func TestGetOrCreateAccountStorageUnavailable(t *testing.T) {
	reg := NewRegistry(unreachableStore{}, Options{RetryInitial: 1})

	_, err := reg.GetOrCreateAccount(context.Background(), WalletKey("v-2"))
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestGetOrCreateAccountWrapsUnclassifiedStoreErrors(t *testing.T) {
	reg := NewRegistry(brokenStore{}, Options{RetryInitial: 1})

	_, err := reg.GetOrCreateAccount(context.Background(), WalletKey("v-4"))
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "42P01")
}

func TestGetOrCreateAccountLosingInsertReadsWinner(t *testing.T) {
	inner := NewInMemory()
	winner := Account{ID: "winner", Key: WalletKey("v-3")}
	store := &racingStore{Store: inner, winner: winner}
	reg := NewRegistry(store, Options{})

	acct, err := reg.GetOrCreateAccount(context.Background(), winner.Key)
	require.NoError(t, err)
	assert.Equal(t, "winner", acct.ID)
}

func TestInvalidKeyRejected(t *testing.T) {
	reg := NewRegistry(NewInMemory(), Options{})
	_, err := reg.GetOrCreateAccount(context.Background(), AccountKey{OwnerType: OwnerUser, OwnerID: "u", Currency: "GOLD"})
	require.ErrorIs(t, err, ErrInvalidAccountKey)
}

type unreachableStore struct{ Store }

func (unreachableStore) Account(context.Context, AccountKey) (Account, error) {
	return Account{}, errors.Join(ErrStorageUnavailable, errors.New("dial tcp: connection refused"))
}

type brokenStore struct{ Store }

func (brokenStore) Account(context.Context, AccountKey) (Account, error) {
	return Account{}, errors.New("postgres 42P01: relation \"ledger_accounts\" does not exist")
}

// racingStore lets another writer win the insert between the miss and the
// registry's own insert.
type racingStore struct {
	Store
	winner Account
	once   sync.Once
}

func (s *racingStore) InsertAccount(ctx context.Context, acct Account) error {
	s.once.Do(func() {
		_ = s.Store.InsertAccount(ctx, s.winner)
	})
	return s.Store.InsertAccount(ctx, acct)
}
