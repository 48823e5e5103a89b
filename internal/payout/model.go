package payout

import "time"

// Status is the lifecycle state of a payout request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether funds are still held for a request in state s.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// transitions lists the allowed next states for each state.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a vendor's withdrawal from their wallet. The wallet is only
// debited when the request completes.
type Request struct {
	ID            string
	VendorID      string
	Amount        int64
	Status        Status
	BankAccountID string
	// TransactionID is the PAYOUT ledger transaction, set on completion.
	TransactionID string
	RequestedAt   time.Time
	DecidedAt     *time.Time
	DecidedBy     string
	CompletedAt   *time.Time
}

// Change is the set of fields written by one state transition.
type Change struct {
	To            Status
	DecidedAt     *time.Time
	DecidedBy     string
	TransactionID string
	CompletedAt   *time.Time
}

func (c Change) applyTo(r Request) Request {
	r.Status = c.To
	if c.DecidedAt != nil {
		r.DecidedAt = c.DecidedAt
	}
	if c.DecidedBy != "" {
		r.DecidedBy = c.DecidedBy
	}
	if c.TransactionID != "" {
		r.TransactionID = c.TransactionID
	}
	if c.CompletedAt != nil {
		r.CompletedAt = c.CompletedAt
	}
	return r
}
