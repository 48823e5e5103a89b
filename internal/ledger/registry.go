package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/loyalty/internal/events"
	"github.com/congo-pay/loyalty/internal/logging"
)

// Options tunes a Registry or Engine. Zero values select defaults.
type Options struct {
	// MaxAttempts bounds how often a conflicting or unreachable store call is tried.
	MaxAttempts  uint
	RetryInitial time.Duration
	Logger       *slog.Logger
	Publisher    events.Publisher
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = defaultRetryInitial
	}
	o.Logger = logging.OrDiscard(o.Logger)
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

func (o Options) retry() retryPolicy {
	return retryPolicy{maxAttempts: o.MaxAttempts, initial: o.RetryInitial}
}

// Registry resolves account keys to accounts, creating them on first use.
type Registry struct {
	store Store
	opts  Options
}

// NewRegistry builds a Registry over store.
func NewRegistry(store Store, opts Options) *Registry {
	return &Registry{store: store, opts: opts.withDefaults()}
}

// GetOrCreateAccount returns the single account for key, creating it with a
// zero balance when absent. Concurrent first calls for one key all observe
// the same account: the losing insert re-reads the winner's row.
func (r *Registry) GetOrCreateAccount(ctx context.Context, key AccountKey) (Account, error) {
	if err := key.Validate(); err != nil {
		return Account{}, err
	}
	acct, err := withRetry(ctx, r.opts.retry(), r.opts.Logger, "get_or_create_account", func() (Account, error) {
		return r.resolve(ctx, key)
	})
	if err != nil {
		return Account{}, fmt.Errorf("%w: resolve account %s: %v", ErrStorageUnavailable, key, err)
	}
	return acct, nil
}

func (r *Registry) resolve(ctx context.Context, key AccountKey) (Account, error) {
	acct, err := r.store.Account(ctx, key)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	fresh := Account{
		ID:        uuid.NewString(),
		Key:       key,
		CreatedAt: r.opts.Now(),
	}
	switch err := r.store.InsertAccount(ctx, fresh); {
	case err == nil:
		r.opts.Logger.DebugContext(ctx, "ledger account created",
			slog.String("account_id", fresh.ID),
			slog.String("account_key", key.String()),
		)
		return fresh, nil
	case errors.Is(err, ErrAccountExists):
		acct, err := r.store.Account(ctx, key)
		if errors.Is(err, ErrAccountNotFound) {
			// Inserted and not yet visible; let the retry loop read again.
			return Account{}, ErrVersionConflict
		}
		return acct, err
	default:
		return Account{}, err
	}
}
