// Package account serves balance snapshots and transaction history for
// ledger accounts.
package account

import (
	"time"

	"github.com/congo-pay/loyalty/internal/ledger"
)

// Snapshot is the externally visible balance of one ledger account.
type Snapshot struct {
	AccountID     string
	Key           ledger.AccountKey
	Balance       int64
	TotalCredited int64
	TotalDebited  int64
	// Held is the amount reserved by open payout requests. It is always zero
	// for POINTS accounts.
	Held      int64
	Available int64
	AsOf      time.Time
}
