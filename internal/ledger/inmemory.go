package ledger

import (
	"context"
	"sort"
	"sync"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	accounts map[AccountKey]Account
	byID     map[string]AccountKey
	logs     map[string][]Transaction
	idem     map[string]map[string]int // account id -> idempotency key -> log index

	// commitFaults makes the next Commit calls fail; see InjectCommitFailures.
	commitFaults []error
}

// NewInMemory creates a concurrency-safe in-memory Store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: make(map[AccountKey]Account),
		byID:     make(map[string]AccountKey),
		logs:     make(map[string][]Transaction),
		idem:     make(map[string]map[string]int),
	}
}

func (s *inMemoryStore) Account(_ context.Context, key AccountKey) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[key]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (s *inMemoryStore) InsertAccount(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acct.Key]; exists {
		return ErrAccountExists
	}
	s.accounts[acct.Key] = acct
	s.byID[acct.ID] = acct.Key
	return nil
}

func (s *inMemoryStore) TransactionByIdempotencyKey(_ context.Context, accountID, key string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.idem[accountID][key]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return s.logs[accountID][idx], nil
}

func (s *inMemoryStore) Commit(_ context.Context, next Account, expectedVersion int64, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commitFaults) > 0 {
		err := s.commitFaults[0]
		s.commitFaults = s.commitFaults[1:]
		return err
	}

	current, ok := s.accounts[next.Key]
	if !ok {
		return ErrAccountNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	if tx.IdempotencyKey != "" {
		if _, dup := s.idem[current.ID][tx.IdempotencyKey]; dup {
			return ErrDuplicateIdempotencyKey
		}
	}

	s.accounts[next.Key] = next
	s.logs[current.ID] = append(s.logs[current.ID], tx)
	if tx.IdempotencyKey != "" {
		if s.idem[current.ID] == nil {
			s.idem[current.ID] = make(map[string]int)
		}
		s.idem[current.ID][tx.IdempotencyKey] = len(s.logs[current.ID]) - 1
	}
	return nil
}

func (s *inMemoryStore) Transactions(_ context.Context, accountID string, filter TransactionFilter) ([]Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[accountID]
	matched := make([]Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if filter.Type != "" && log[i].Type != filter.Type {
			continue
		}
		matched = append(matched, log[i])
	}

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []Transaction{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *inMemoryStore) AllTransactions(_ context.Context, accountID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Transaction(nil), s.logs[accountID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}
