// Package payout implements the vendor payout workflow: a request is held
// against the wallet balance, decided by an administrator and finally
// completed by debiting the wallet through the ledger.
package payout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition is returned when the state machine does not
	// allow the requested change. Errors carrying details are *TransitionError.
	ErrInvalidStateTransition = errors.New("invalid payout state transition")
	ErrNotFound               = errors.New("payout request not found")
	ErrNotOwner               = errors.New("payout request belongs to another vendor")
	ErrInvalidAmount          = errors.New("payout amount must be positive")
	ErrBelowMinimum           = errors.New("payout amount below minimum")
	ErrExceedsAvailable       = errors.New("payout exceeds available balance")
	ErrInvalidDecision        = errors.New("decision must be APPROVED or REJECTED")
	ErrBankAccountRequired    = errors.New("bank account is required")
	ErrInvalidStatus          = errors.New("unknown payout status")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payout %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidStateTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// ExceedsAvailableError reports the amounts behind a rejected request.
type ExceedsAvailableError struct {
	Requested int64
	Balance   int64
	Held      int64
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("payout exceeds available balance: requested %d, balance %d, held %d",
		e.Requested, e.Balance, e.Held)
}

// Is makes errors.Is(err, ErrExceedsAvailable) match.
func (e *ExceedsAvailableError) Is(target error) bool {
	return target == ErrExceedsAvailable
}
