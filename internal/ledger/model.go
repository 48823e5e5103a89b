package ledger

import (
	"fmt"
	"time"
)

// OwnerType identifies who owns a ledger account.
type OwnerType string

const (
	OwnerUser   OwnerType = "USER"
	OwnerVendor OwnerType = "VENDOR"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool {
	return t == OwnerUser || t == OwnerVendor
}

// CurrencyClass separates independent balance spaces held by one owner.
type CurrencyClass string

const (
	// CurrencyPoints holds loyalty units.
	CurrencyPoints CurrencyClass = "POINTS"
	// CurrencyWallet holds monetary units in minor denomination.
	CurrencyWallet CurrencyClass = "WALLET"
)

// Valid reports whether c is a known currency class.
func (c CurrencyClass) Valid() bool {
	return c == CurrencyPoints || c == CurrencyWallet
}

// TxType classifies a ledger transaction.
type TxType string

const (
	TxEarned     TxType = "EARNED"
	TxRedeemed   TxType = "REDEEMED"
	TxAdjusted   TxType = "ADJUSTED"
	TxCommission TxType = "COMMISSION"
	TxPayout     TxType = "PAYOUT"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case TxEarned, TxRedeemed, TxAdjusted, TxCommission, TxPayout:
		return true
	}
	return false
}

// sign returns the required sign of amounts for t: 1 credit-only, -1
// debit-only, 0 either direction.
func (t TxType) sign() int {
	switch t {
	case TxEarned, TxCommission:
		return 1
	case TxRedeemed, TxPayout:
		return -1
	}
	return 0
}

// AccountKey addresses exactly one ledger account.
type AccountKey struct {
	OwnerType OwnerType
	OwnerID   string
	Currency  CurrencyClass
}

// PointsKey is shorthand for the POINTS account of an owner.
func PointsKey(ownerType OwnerType, ownerID string) AccountKey {
	return AccountKey{OwnerType: ownerType, OwnerID: ownerID, Currency: CurrencyPoints}
}

// WalletKey is shorthand for a vendor's WALLET account.
func WalletKey(vendorID string) AccountKey {
	return AccountKey{OwnerType: OwnerVendor, OwnerID: vendorID, Currency: CurrencyWallet}
}

// Validate rejects keys with unknown enums or an empty owner id.
func (k AccountKey) Validate() error {
	if !k.OwnerType.Valid() {
		return fmt.Errorf("%w: owner type %q", ErrInvalidAccountKey, k.OwnerType)
	}
	if k.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidAccountKey)
	}
	if !k.Currency.Valid() {
		return fmt.Errorf("%w: currency class %q", ErrInvalidAccountKey, k.Currency)
	}
	return nil
}

func (k AccountKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.OwnerType, k.OwnerID, k.Currency)
}

// Account is the stored balance record for one AccountKey.
//
// Balance always equals TotalCredited - TotalDebited. Version counts the
// committed transactions and is the sequence number of the latest one.
type Account struct {
	ID            string
	Key           AccountKey
	Balance       int64
	TotalCredited int64
	TotalDebited  int64
	Version       int64
	CreatedAt     time.Time
}

// EntityRef points at the domain object a transaction relates to.
type EntityRef struct {
	Type string
	ID   string
}

// Actor records who caused a transaction.
type Actor struct {
	Type string
	ID   string
}

// IsZero reports whether no actor was supplied.
func (a Actor) IsZero() bool {
	return a.Type == "" && a.ID == ""
}

// Transaction is an immutable ledger record. BalanceAfter always equals
// BalanceBefore + Amount.
type Transaction struct {
	ID             string
	AccountID      string
	Sequence       int64
	Type           TxType
	Amount         int64
	BalanceBefore  int64
	BalanceAfter   int64
	Related        EntityRef
	Description    string
	Actor          Actor
	IdempotencyKey string
	CreatedAt      time.Time
}

// Posting is the input to Engine.Apply.
type Posting struct {
	Key         AccountKey
	Type        TxType
	Amount      int64
	Related     EntityRef
	Actor       Actor
	Description string
	// IdempotencyKey, when set, makes a repeated posting return the original
	// transaction instead of writing a new one.
	IdempotencyKey string
	// AllowNegative lets an ADJUSTED posting take the balance below zero.
	// It is ignored for every other type.
	AllowNegative bool
}

// TransactionFilter narrows and pages a transaction listing. Page is 1-based.
type TransactionFilter struct {
	Type     TxType
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (f TransactionFilter) normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

// Offset returns the number of rows preceding the requested page.
func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// TransactionPage is one page of a newest-first transaction listing.
type TransactionPage struct {
	Transactions []Transaction
	Page         int
	PageSize     int
	Total        int
}

// LastPage returns the number of the final page, at least 1.
func (p TransactionPage) LastPage() int {
	if p.Total == 0 || p.PageSize == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
