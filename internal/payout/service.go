package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/loyalty/internal/events"
	"github.com/congo-pay/loyalty/internal/keylock"
	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/logging"
)

// Options configures a Service.
type Options struct {
	// MinimumPayout is the smallest amount a vendor may request.
	MinimumPayout int64
	Publisher     events.Publisher
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service runs the payout state machine.
type Service struct {
	repo   Repository
	ledger *ledger.Engine
	// locks serialises request creation and completion per vendor within
	// this process; the repository guards creation across processes.
	locks *keylock.Locker
	opts  Options
}

// NewService builds a payout service.
func NewService(repo Repository, engine *ledger.Engine, opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	opts.Logger = logging.OrDiscard(opts.Logger)
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, ledger: engine, locks: keylock.New(), opts: opts}
}

// Request opens a PENDING payout. Nothing is debited yet, but the amount is
// held against the wallet until the request is rejected, cancelled or
// completed.
func (s *Service) Request(ctx context.Context, vendorID string, amount int64, bankAccountID string) (Request, error) {
	if amount <= 0 {
		return Request{}, ErrInvalidAmount
	}
	if amount < s.opts.MinimumPayout {
		return Request{}, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, s.opts.MinimumPayout)
	}
	if bankAccountID == "" {
		return Request{}, ErrBankAccountRequired
	}
	key := ledger.WalletKey(vendorID)
	if err := key.Validate(); err != nil {
		return Request{}, err
	}

	unlock := s.locks.Lock(vendorID)
	defer unlock()

	wallet, err := s.ledger.Balance(ctx, key)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ID:            uuid.NewString(),
		VendorID:      vendorID,
		Amount:        amount,
		Status:        StatusPending,
		BankAccountID: bankAccountID,
		RequestedAt:   s.opts.Now(),
	}
	if err := s.repo.CreateWithinBalance(ctx, req, wallet.Balance); err != nil {
		return Request{}, err
	}
	s.published(ctx, req, "")
	return req, nil
}

// Decide approves or rejects a PENDING request.
func (s *Service) Decide(ctx context.Context, id string, decision Status, decidedBy string) (Request, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return Request{}, ErrInvalidDecision
	}
	if decidedBy == "" {
		return Request{}, ledger.ErrActorRequired
	}
	now := s.opts.Now()
	return s.transition(ctx, id, StatusPending, Change{To: decision, DecidedAt: &now, DecidedBy: decidedBy})
}

// Cancel withdraws a PENDING request on behalf of its vendor.
func (s *Service) Cancel(ctx context.Context, id, vendorID string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.VendorID != vendorID {
		return Request{}, ErrNotOwner
	}
	return s.transition(ctx, id, StatusPending, Change{To: StatusCancelled})
}

// Complete debits the wallet for an APPROVED request and marks it COMPLETED.
// The debit is keyed on the request id, so repeating Complete after a
// partial failure never debits twice. If the wallet cannot cover the amount
// the request stays APPROVED and the error is returned for reconciliation.
func (s *Service) Complete(ctx context.Context, id string, actor ledger.Actor) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusApproved {
		return Request{}, &TransitionError{ID: id, From: req.Status, To: StatusCompleted}
	}

	unlock := s.locks.Lock(req.VendorID)
	defer unlock()

	tx, err := s.ledger.Apply(ctx, ledger.Posting{
		Key:            ledger.WalletKey(req.VendorID),
		Type:           ledger.TxPayout,
		Amount:         -req.Amount,
		Related:        ledger.EntityRef{Type: "payout_request", ID: req.ID},
		Actor:          actor,
		Description:    "payout to bank account " + req.BankAccountID,
		IdempotencyKey: "payout:" + req.ID,
	})
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "payout debit failed, request left approved",
			slog.String("payout_id", req.ID),
			slog.String("vendor_id", req.VendorID),
			slog.Int64("amount", req.Amount),
			slog.Any("error", err),
		)
		return Request{}, err
	}

	now := s.opts.Now()
	done, err := s.transition(ctx, id, StatusApproved, Change{To: StatusCompleted, TransactionID: tx.ID, CompletedAt: &now})
	if err == nil {
		return done, nil
	}
	// A concurrent Complete may have won; the ledger debit above was a replay.
	if errors.Is(err, ErrInvalidStateTransition) {
		if current, getErr := s.repo.Get(ctx, id); getErr == nil && current.Status == StatusCompleted && current.TransactionID == tx.ID {
			return current, nil
		}
	}
	return Request{}, err
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

// List returns a vendor's requests newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, vendorID string, status Status) ([]Request, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.List(ctx, vendorID, status)
}

// HeldAmount sums the vendor's open requests.
func (s *Service) HeldAmount(ctx context.Context, vendorID string) (int64, error) {
	return s.repo.HeldAmount(ctx, vendorID)
}

func (s *Service) transition(ctx context.Context, id string, from Status, change Change) (Request, error) {
	if !CanTransition(from, change.To) {
		return Request{}, &TransitionError{ID: id, From: from, To: change.To}
	}
	req, err := s.repo.Transition(ctx, id, from, change)
	if err != nil {
		return Request{}, err
	}
	s.published(ctx, req, from)
	return req, nil
}

func (s *Service) published(ctx context.Context, req Request, from Status) {
	s.opts.Logger.InfoContext(ctx, "payout status changed",
		slog.String("payout_id", req.ID),
		slog.String("vendor_id", req.VendorID),
		slog.String("from", string(from)),
		slog.String("to", string(req.Status)),
		slog.Int64("amount", req.Amount),
	)
	err := s.opts.Publisher.Publish(ctx, events.Event{
		Kind:       events.KindPayoutStatusChanged,
		Subject:    req.ID,
		OccurredAt: s.opts.Now(),
		Attributes: map[string]any{
			"vendor_id": req.VendorID,
			"from":      string(from),
			"to":        string(req.Status),
			"amount":    req.Amount,
		},
	})
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "publish payout event", slog.Any("error", err))
	}
}
