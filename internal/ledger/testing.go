package ledger

// InjectCommitFailures makes the next len(errs) commits on an in-memory store
// fail with errs in order. Other stores are left untouched.
func InjectCommitFailures(s Store, errs ...error) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.commitFaults = append(mem.commitFaults, errs...)
	}
}

// CorruptBalance overwrites the stored balance of an in-memory account
// without writing a transaction. It exists to exercise Engine.Verify.
func CorruptBalance(s Store, key AccountKey, balance int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct := mem.accounts[key]
		acct.Balance = balance
		mem.accounts[key] = acct
	}
}
