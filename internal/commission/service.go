// Package commission credits vendor wallets when orders settle.
package commission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/logging"
)

// Service accrues vendor commissions.
type Service struct {
	ledger *ledger.Engine
	logger *slog.Logger
}

// NewService builds a commission service.
func NewService(engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{ledger: engine, logger: logging.OrDiscard(logger)}
}

// Credit posts amount to vendorID's wallet for orderRef. The order reference
// is the idempotency key, so a settled order accrues at most once no matter
// how often the collaborator retries.
func (s *Service) Credit(ctx context.Context, vendorID string, amount int64, orderRef string) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("%w: commission must be positive", ledger.ErrInvalidAmount)
	}
	if orderRef == "" {
		return ledger.Transaction{}, fmt.Errorf("%w: order reference is required", ledger.ErrInvalidAmount)
	}
	tx, err := s.ledger.Apply(ctx, ledger.Posting{
		Key:            ledger.WalletKey(vendorID),
		Type:           ledger.TxCommission,
		Amount:         amount,
		Related:        ledger.EntityRef{Type: "order", ID: orderRef},
		Description:    "commission on settled order",
		IdempotencyKey: orderRef,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "commission accrual failed",
			slog.String("vendor_id", vendorID),
			slog.String("order_ref", orderRef),
			slog.Any("error", err),
		)
		return ledger.Transaction{}, err
	}
	return tx, nil
}
