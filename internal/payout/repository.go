package payout

import (
	"context"
	"sort"
	"sync"
)

// Repository persists payout requests.
type Repository interface {
	// CreateWithinBalance stores req unless req.Amount plus the vendor's open
	// requests would exceed balance, in which case it returns
	// *ExceedsAvailableError. The check and insert are atomic per vendor.
	CreateWithinBalance(ctx context.Context, req Request, balance int64) error
	Get(ctx context.Context, id string) (Request, error)
	// List returns a vendor's requests newest first, optionally by status.
	List(ctx context.Context, vendorID string, status Status) ([]Request, error)
	// HeldAmount sums the vendor's PENDING and APPROVED requests.
	HeldAmount(ctx context.Context, vendorID string) (int64, error)
	// Transition applies change if the request is still in state from.
	// Otherwise it returns *TransitionError naming the current state.
	Transition(ctx context.Context, id string, from Status, change Change) (Request, error)
}

type memoryRepository struct {
	mu       sync.RWMutex
	requests map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for tests and dev.
func NewMemoryRepository() Repository {
	return &memoryRepository{requests: make(map[string]Request)}
}

func (r *memoryRepository) CreateWithinBalance(_ context.Context, req Request, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.heldLocked(req.VendorID)
	if req.Amount+held > balance {
		return &ExceedsAvailableError{Requested: req.Amount, Balance: balance, Held: held}
	}
	r.requests[req.ID] = req
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryRepository) List(_ context.Context, vendorID string, status Status) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Request{}
	for _, req := range r.requests {
		if req.VendorID != vendorID || (status != "" && req.Status != status) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (r *memoryRepository) HeldAmount(_ context.Context, vendorID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.heldLocked(vendorID), nil
}

func (r *memoryRepository) heldLocked(vendorID string) int64 {
	var held int64
	for _, req := range r.requests {
		if req.VendorID == vendorID && req.Status.Open() {
			held += req.Amount
		}
	}
	return held
}

func (r *memoryRepository) Transition(_ context.Context, id string, from Status, change Change) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Status != from {
		return Request{}, &TransitionError{ID: id, From: req.Status, To: change.To}
	}
	req = change.applyTo(req)
	r.requests[id] = req
	return req, nil
}
