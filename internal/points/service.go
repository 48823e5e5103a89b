// Package points implements the loyalty point workflows: redemption at
// checkout, privileged adjustments and earning on order settlement.
package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/logging"
)

// ErrInvalidConversionRate is returned when the configured rate is not positive.
var ErrInvalidConversionRate = errors.New("conversion rate must be positive")

const relatedOrder = "order"

// RedeemResult is the outcome of a redemption. The caller applies
// DiscountAmount to the order total.
type RedeemResult struct {
	DiscountAmount   int64
	RemainingBalance int64
	Transaction      ledger.Transaction
}

// Service runs point workflows on top of the ledger engine.
type Service struct {
	ledger         *ledger.Engine
	conversionRate int64
	logger         *slog.Logger
}

// NewService builds a point service. conversionRate is the number of points
// worth one minor unit of discount.
func NewService(engine *ledger.Engine, conversionRate int64, logger *slog.Logger) (*Service, error) {
	if conversionRate <= 0 {
		return nil, ErrInvalidConversionRate
	}
	return &Service{ledger: engine, conversionRate: conversionRate, logger: logging.OrDiscard(logger)}, nil
}

// ConversionRate returns the configured points-per-unit rate.
func (s *Service) ConversionRate() int64 {
	return s.conversionRate
}

func redeemKey(orderRef string) string { return "redeem:" + orderRef }
func earnKey(orderRef string) string   { return "earn:" + orderRef }

// Redeem debits points from key for orderRef. Retrying with the same orderRef
// returns the original redemption.
func (s *Service) Redeem(ctx context.Context, key ledger.AccountKey, points int64, orderRef string) (RedeemResult, error) {
	if points <= 0 {
		return RedeemResult{}, fmt.Errorf("%w: points must be positive", ledger.ErrInvalidAmount)
	}
	if orderRef == "" {
		return RedeemResult{}, fmt.Errorf("%w: order reference is required", ledger.ErrInvalidAmount)
	}

	// Fast rejection only. Engine.Apply re-checks under the account lock.
	acct, err := s.ledger.Balance(ctx, key)
	if err != nil {
		return RedeemResult{}, err
	}
	if acct.Balance < points {
		prior, found, err := s.ledger.FindByIdempotencyKey(ctx, key, redeemKey(orderRef))
		if err != nil {
			return RedeemResult{}, err
		}
		if !found {
			return RedeemResult{}, &ledger.InsufficientBalanceError{Key: key, Requested: points, Balance: acct.Balance}
		}
		return s.result(prior), nil
	}

	tx, err := s.ledger.Apply(ctx, ledger.Posting{
		Key:            key,
		Type:           ledger.TxRedeemed,
		Amount:         -points,
		Related:        ledger.EntityRef{Type: relatedOrder, ID: orderRef},
		Description:    "points redeemed at checkout",
		IdempotencyKey: redeemKey(orderRef),
	})
	if err != nil {
		return RedeemResult{}, err
	}
	s.logger.InfoContext(ctx, "points redeemed",
		slog.String("account_key", key.String()),
		slog.String("order_ref", orderRef),
		slog.Int64("points", points),
		slog.Int64("balance_after", tx.BalanceAfter),
	)
	return s.result(tx), nil
}

func (s *Service) result(tx ledger.Transaction) RedeemResult {
	return RedeemResult{
		DiscountAmount:   -tx.Amount / s.conversionRate,
		RemainingBalance: tx.BalanceAfter,
		Transaction:      tx,
	}
}

// AdjustInput describes a privileged manual credit or debit.
type AdjustInput struct {
	Key          ledger.AccountKey
	SignedPoints int64
	Description  string
	Actor        ledger.Actor
	// AllowNegative lets a debit take the balance below zero.
	AllowNegative bool
	// IdempotencyKey is optional for adjustments.
	IdempotencyKey string
}

// Adjust posts an ADJUSTED transaction attributed to in.Actor.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (ledger.Transaction, error) {
	if in.Actor.IsZero() {
		return ledger.Transaction{}, ledger.ErrActorRequired
	}
	tx, err := s.ledger.Apply(ctx, ledger.Posting{
		Key:            in.Key,
		Type:           ledger.TxAdjusted,
		Amount:         in.SignedPoints,
		Actor:          in.Actor,
		Description:    in.Description,
		IdempotencyKey: in.IdempotencyKey,
		AllowNegative:  in.AllowNegative,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	level := slog.LevelInfo
	if in.AllowNegative && tx.BalanceAfter < 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "balance adjusted",
		slog.String("account_key", in.Key.String()),
		slog.Int64("amount", in.SignedPoints),
		slog.Int64("balance_after", tx.BalanceAfter),
		slog.String("actor_type", in.Actor.Type),
		slog.String("actor_id", in.Actor.ID),
		slog.Bool("allow_negative", in.AllowNegative),
	)
	return tx, nil
}

// Award credits points earned on a settled order, at most once per order.
func (s *Service) Award(ctx context.Context, key ledger.AccountKey, points int64, orderRef string) (ledger.Transaction, error) {
	if points <= 0 {
		return ledger.Transaction{}, fmt.Errorf("%w: points must be positive", ledger.ErrInvalidAmount)
	}
	if orderRef == "" {
		return ledger.Transaction{}, fmt.Errorf("%w: order reference is required", ledger.ErrInvalidAmount)
	}
	return s.ledger.Apply(ctx, ledger.Posting{
		Key:            key,
		Type:           ledger.TxEarned,
		Amount:         points,
		Related:        ledger.EntityRef{Type: relatedOrder, ID: orderRef},
		Description:    "points earned on order",
		IdempotencyKey: earnKey(orderRef),
	})
}
