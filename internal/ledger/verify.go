package ledger

import (
	"context"
	"fmt"
)

// Report is the outcome of replaying an account's transaction log.
type Report struct {
	AccountID      string
	Transactions   int
	StoredBalance  int64
	ReplayedCredit int64
	ReplayedDebit  int64
	ReplayedTotal  int64
	// Problems lists every chain break or mismatch found, oldest first.
	Problems []string
}

// Consistent reports whether the replay found nothing wrong.
func (r Report) Consistent() bool {
	return len(r.Problems) == 0
}

// Verify folds key's log from a zero balance in creation order and checks
// that every transaction chains onto its predecessor and that the result
// matches the stored account.
func (e *Engine) Verify(ctx context.Context, key AccountKey) (Report, error) {
	acct, err := e.registry.GetOrCreateAccount(ctx, key)
	if err != nil {
		return Report{}, err
	}
	txs, err := e.store.AllTransactions(ctx, acct.ID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: load log: %v", ErrStorageUnavailable, err)
	}
	// Re-read so the snapshot is no older than the log.
	acct, err = e.store.Account(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("%w: reload account: %v", ErrStorageUnavailable, err)
	}
	return replay(acct, txs), nil
}

func replay(acct Account, txs []Transaction) Report {
	rep := Report{AccountID: acct.ID, StoredBalance: acct.Balance}
	var running int64
	for i, tx := range txs {
		if tx.Sequence != int64(i+1) {
			rep.Problems = append(rep.Problems, fmt.Sprintf("transaction %s: sequence %d, want %d", tx.ID, tx.Sequence, i+1))
		}
		if tx.BalanceBefore != running {
			rep.Problems = append(rep.Problems, fmt.Sprintf("transaction %s: balance_before %d, want %d", tx.ID, tx.BalanceBefore, running))
		}
		if tx.BalanceAfter != tx.BalanceBefore+tx.Amount {
			rep.Problems = append(rep.Problems, fmt.Sprintf("transaction %s: balance_after %d != %d%+d", tx.ID, tx.BalanceAfter, tx.BalanceBefore, tx.Amount))
		}
		running += tx.Amount
		if tx.Amount > 0 {
			rep.ReplayedCredit += tx.Amount
		} else {
			rep.ReplayedDebit -= tx.Amount
		}
	}
	rep.Transactions = len(txs)
	rep.ReplayedTotal = running

	// Entries committed after AllTransactions ran show up only in acct.
	if acct.Version == int64(len(txs)) {
		if running != acct.Balance {
			rep.Problems = append(rep.Problems, fmt.Sprintf("stored balance %d, replayed %d", acct.Balance, running))
		}
		if rep.ReplayedCredit != acct.TotalCredited || rep.ReplayedDebit != acct.TotalDebited {
			rep.Problems = append(rep.Problems, fmt.Sprintf("stored totals %d/%d, replayed %d/%d",
				acct.TotalCredited, acct.TotalDebited, rep.ReplayedCredit, rep.ReplayedDebit))
		}
	} else if acct.Version < int64(len(txs)) {
		rep.Problems = append(rep.Problems, fmt.Sprintf("stored version %d behind log length %d", acct.Version, len(txs)))
	}
	if acct.Balance != acct.TotalCredited-acct.TotalDebited {
		rep.Problems = append(rep.Problems, fmt.Sprintf("balance %d != credited %d - debited %d", acct.Balance, acct.TotalCredited, acct.TotalDebited))
	}
	return rep
}
