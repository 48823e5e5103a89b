package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/congo-pay/loyalty/internal/events"
	"github.com/congo-pay/loyalty/internal/keylock"
)

// Engine applies balance-changing postings. Each posting becomes one atomic
// commit of the new account state plus an immutable transaction record.
//
// Postings against the same account are serialised twice over: an in-process
// lock per account id, and the store's version check, which catches writers in
// other processes. Postings against different accounts never wait on each other.
type Engine struct {
	store    Store
	registry *Registry
	locks    *keylock.Locker
	opts     Options
}

// NewEngine builds an Engine over store.
func NewEngine(store Store, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:    store,
		registry: NewRegistry(store, opts),
		locks:    keylock.New(),
		opts:     opts,
	}
}

// Registry exposes the account registry the engine resolves keys with.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Apply validates and commits p, returning the recorded transaction. When
// p.IdempotencyKey was already used on the account the original transaction
// is returned and nothing is written.
func (e *Engine) Apply(ctx context.Context, p Posting) (Transaction, error) {
	if err := validatePosting(p); err != nil {
		return Transaction{}, err
	}

	acct, err := e.registry.GetOrCreateAccount(ctx, p.Key)
	if err != nil {
		return Transaction{}, err
	}

	unlock := e.locks.Lock(acct.ID)
	defer unlock()

	var (
		replayed bool
		unacked  string
	)
	tx, err := withRetry(ctx, e.opts.retry(), e.opts.Logger, "apply", func() (Transaction, error) {
		tx, replay, err := e.applyOnce(ctx, acct.ID, p)
		if err != nil && tx.ID != "" {
			unacked = tx.ID
		}
		// Finding our own unacknowledged write is a commit, not a replay.
		replayed = replay && tx.ID != unacked
		return tx, err
	})
	if err != nil {
		if isRetryable(err) {
			return Transaction{}, fmt.Errorf("%w: %s %d on %s", ErrTransientFailure, p.Type, p.Amount, p.Key)
		}
		return Transaction{}, err
	}

	if replayed {
		e.opts.Logger.InfoContext(ctx, "ledger idempotent replay",
			slog.String("account_key", p.Key.String()),
			slog.String("idempotency_key", p.IdempotencyKey),
			slog.String("transaction_id", tx.ID),
		)
		return tx, nil
	}

	e.opts.Logger.DebugContext(ctx, "ledger transaction committed",
		slog.String("account_key", p.Key.String()),
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.Int64("amount", tx.Amount),
		slog.Int64("balance_after", tx.BalanceAfter),
	)
	e.publish(ctx, p.Key, tx)
	return tx, nil
}

func (e *Engine) applyOnce(ctx context.Context, accountID string, p Posting) (Transaction, bool, error) {
	if p.IdempotencyKey != "" {
		existing, err := e.store.TransactionByIdempotencyKey(ctx, accountID, p.IdempotencyKey)
		if err == nil {
			if existing.Amount != p.Amount || existing.Type != p.Type {
				e.opts.Logger.WarnContext(ctx, "idempotency key reused with different posting",
					slog.String("idempotency_key", p.IdempotencyKey),
					slog.String("transaction_id", existing.ID),
					slog.Int64("stored_amount", existing.Amount),
					slog.Int64("requested_amount", p.Amount),
				)
			}
			return existing, true, nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return Transaction{}, false, err
		}
	}

	current, err := e.store.Account(ctx, p.Key)
	if err != nil {
		return Transaction{}, false, err
	}

	next := current
	next.Balance += p.Amount
	if p.Amount > 0 {
		next.TotalCredited += p.Amount
	} else {
		next.TotalDebited -= p.Amount
	}
	next.Version++

	if p.Amount < 0 && next.Balance < 0 && !(p.Type == TxAdjusted && p.AllowNegative) {
		return Transaction{}, false, &InsufficientBalanceError{
			Key:       p.Key,
			Requested: -p.Amount,
			Balance:   current.Balance,
		}
	}

	tx := Transaction{
		ID:             uuid.NewString(),
		AccountID:      current.ID,
		Sequence:       next.Version,
		Type:           p.Type,
		Amount:         p.Amount,
		BalanceBefore:  current.Balance,
		BalanceAfter:   next.Balance,
		Related:        p.Related,
		Description:    p.Description,
		Actor:          p.Actor,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      e.opts.Now(),
	}

	// The commit must finish once started, even if the caller stops waiting.
	err = e.store.Commit(context.WithoutCancel(ctx), next, current.Version, tx)
	switch {
	case err == nil:
		return tx, false, nil
	case errors.Is(err, ErrStorageUnavailable):
		// The write may have landed. A keyed posting retries and finds it
		// through its idempotency key; an unkeyed one must not be posted again.
		e.opts.Logger.WarnContext(ctx, "ledger commit outcome unknown",
			slog.String("account_key", p.Key.String()),
			slog.String("transaction_id", tx.ID),
			slog.String("idempotency_key", p.IdempotencyKey),
			slog.String("error", err.Error()),
		)
		if p.IdempotencyKey == "" {
			return tx, false, fmt.Errorf("%w: commit outcome unknown for %s %d on %s: %v",
				ErrTransientFailure, p.Type, p.Amount, p.Key, err)
		}
		return tx, false, err
	default:
		return Transaction{}, false, err
	}
}

func (e *Engine) publish(ctx context.Context, key AccountKey, tx Transaction) {
	err := e.opts.Publisher.Publish(ctx, events.Event{
		Kind:       events.KindTransactionCommitted,
		Subject:    tx.AccountID,
		OccurredAt: tx.CreatedAt,
		Attributes: map[string]any{
			"account_key":    key.String(),
			"transaction_id": tx.ID,
			"type":           string(tx.Type),
			"amount":         tx.Amount,
			"balance_after":  tx.BalanceAfter,
		},
	})
	if err != nil {
		e.opts.Logger.WarnContext(ctx, "publish ledger event", slog.Any("error", err))
	}
}

// FindByIdempotencyKey returns the transaction committed on key's account
// under idempotencyKey, if any.
func (e *Engine) FindByIdempotencyKey(ctx context.Context, key AccountKey, idempotencyKey string) (Transaction, bool, error) {
	acct, err := e.registry.GetOrCreateAccount(ctx, key)
	if err != nil {
		return Transaction{}, false, err
	}
	tx, err := e.store.TransactionByIdempotencyKey(ctx, acct.ID, idempotencyKey)
	switch {
	case err == nil:
		return tx, true, nil
	case errors.Is(err, ErrTransactionNotFound):
		return Transaction{}, false, nil
	default:
		return Transaction{}, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// Balance returns the current account state for key.
func (e *Engine) Balance(ctx context.Context, key AccountKey) (Account, error) {
	return e.registry.GetOrCreateAccount(ctx, key)
}

// Transactions lists key's transactions newest first.
func (e *Engine) Transactions(ctx context.Context, key AccountKey, filter TransactionFilter) (TransactionPage, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return TransactionPage{}, fmt.Errorf("unknown transaction type %q", filter.Type)
	}
	filter = filter.normalize()

	acct, err := e.registry.GetOrCreateAccount(ctx, key)
	if err != nil {
		return TransactionPage{}, err
	}
	txs, total, err := e.store.Transactions(ctx, acct.ID, filter)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("%w: list transactions: %v", ErrStorageUnavailable, err)
	}
	return TransactionPage{Transactions: txs, Page: filter.Page, PageSize: filter.PageSize, Total: total}, nil
}

func validatePosting(p Posting) error {
	if err := p.Key.Validate(); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", p.Type)
	}
	if p.Amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}
	switch p.Type.sign() {
	case 1:
		if p.Amount < 0 {
			return fmt.Errorf("%w: %s requires a positive amount", ErrInvalidAmount, p.Type)
		}
	case -1:
		if p.Amount > 0 {
			return fmt.Errorf("%w: %s requires a negative amount", ErrInvalidAmount, p.Type)
		}
	}
	if p.Type == TxAdjusted && p.Actor.IsZero() {
		return ErrActorRequired
	}
	return nil
}
