// Package ledger keeps per-owner point and wallet balances together with an
// append-only, chained transaction log.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for zero amounts or amounts whose sign does
	// not match the transaction type.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAccountKey is returned when an account key has unknown parts.
	ErrInvalidAccountKey = errors.New("invalid account key")

	// ErrInsufficientBalance occurs when a posting would take the balance
	// below zero. Errors carrying details are *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrActorRequired is returned when an audited posting lacks an actor.
	ErrActorRequired = errors.New("actor is required")

	// ErrTransientFailure means the store kept conflicting or was unreachable
	// for every attempt. Retrying with the same idempotency key is safe.
	ErrTransientFailure = errors.New("transient ledger failure")

	// ErrStorageUnavailable wraps failures to reach the underlying store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAccountNotFound is returned by stores for unknown keys. The Registry
	// resolves it by creating the account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned by Store.InsertAccount when another writer
	// created the same key first.
	ErrAccountExists = errors.New("account already exists")

	// ErrTransactionNotFound is returned when no transaction matches an
	// idempotency key.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrVersionConflict is returned by Store.Commit when the account changed
	// since it was read.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrDuplicateIdempotencyKey is returned by Store.Commit when a concurrent
	// writer committed the same idempotency key first.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// InsufficientBalanceError describes a rejected debit.
type InsufficientBalanceError struct {
	Key       AccountKey
	Requested int64
	Balance   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: requested %d, balance %d", e.Key, e.Requested, e.Balance)
}

// Is makes errors.Is(err, ErrInsufficientBalance) match.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Store persists accounts and their transaction logs. Implementations must
// make Commit atomic: the account update and the transaction insert either
// both happen or neither does.
type Store interface {
	// Account returns the account for key or ErrAccountNotFound.
	Account(ctx context.Context, key AccountKey) (Account, error)
	// InsertAccount creates acct or returns ErrAccountExists if its key is taken.
	InsertAccount(ctx context.Context, acct Account) error
	// TransactionByIdempotencyKey returns the transaction previously committed
	// for (accountID, key) or ErrTransactionNotFound.
	TransactionByIdempotencyKey(ctx context.Context, accountID, key string) (Transaction, error)
	// Commit stores next as the new account state and appends tx. It fails
	// with ErrVersionConflict unless the stored version equals expectedVersion
	// and with ErrDuplicateIdempotencyKey if tx's key was already used.
	Commit(ctx context.Context, next Account, expectedVersion int64, tx Transaction) error
	// Transactions lists an account's transactions newest first.
	Transactions(ctx context.Context, accountID string, filter TransactionFilter) ([]Transaction, int, error)
	// AllTransactions returns the full log oldest first.
	AllTransactions(ctx context.Context, accountID string) ([]Transaction, error)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrStorageUnavailable)
}
