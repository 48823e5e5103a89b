package account

import (
	"context"
	"time"

	"github.com/congo-pay/loyalty/internal/ledger"
)

// HoldSource reports funds reserved against a vendor wallet.
type HoldSource interface {
	HeldAmount(ctx context.Context, vendorID string) (int64, error)
}

// Service exposes read operations over ledger accounts.
type Service struct {
	ledger *ledger.Engine
	holds  HoldSource
}

// NewService builds an account read service. holds may be nil.
func NewService(engine *ledger.Engine, holds HoldSource) *Service {
	return &Service{ledger: engine, holds: holds}
}

// Balance returns the balance snapshot for key, creating an empty account on
// first access.
func (s *Service) Balance(ctx context.Context, key ledger.AccountKey) (Snapshot, error) {
	acct, err := s.ledger.Balance(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		AccountID:     acct.ID,
		Key:           acct.Key,
		Balance:       acct.Balance,
		TotalCredited: acct.TotalCredited,
		TotalDebited:  acct.TotalDebited,
		Available:     acct.Balance,
		AsOf:          time.Now().UTC(),
	}
	if key.Currency == ledger.CurrencyWallet && key.OwnerType == ledger.OwnerVendor && s.holds != nil {
		held, err := s.holds.HeldAmount(ctx, key.OwnerID)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Held = held
		snap.Available = acct.Balance - held
	}
	return snap, nil
}

// Transactions lists key's transactions newest first.
func (s *Service) Transactions(ctx context.Context, key ledger.AccountKey, filter ledger.TransactionFilter) (ledger.TransactionPage, error) {
	return s.ledger.Transactions(ctx, key, filter)
}

// Verify replays key's log and reports inconsistencies.
func (s *Service) Verify(ctx context.Context, key ledger.AccountKey) (ledger.Report, error) {
	return s.ledger.Verify(ctx, key)
}
