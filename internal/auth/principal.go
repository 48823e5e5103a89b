package auth

import (
	"errors"
	"fmt"

	"github.com/congo-pay/loyalty/internal/ledger"
)

// PrincipalType is the kind of authenticated caller.
type PrincipalType string

const (
	PrincipalUser   PrincipalType = "USER"
	PrincipalVendor PrincipalType = "VENDOR"
	PrincipalAdmin  PrincipalType = "ADMIN"
	// PrincipalSystem is a trusted collaborator such as order settlement.
	PrincipalSystem PrincipalType = "SYSTEM"
)

// ErrInvalidPrincipal is returned for tokens naming an unknown type or no id.
var ErrInvalidPrincipal = errors.New("invalid principal")

// Principal identifies the already-authenticated caller of an operation.
type Principal struct {
	Type PrincipalType
	ID   string
}

// Validate rejects principals with an unknown type or empty id.
func (p Principal) Validate() error {
	switch p.Type {
	case PrincipalUser, PrincipalVendor, PrincipalAdmin, PrincipalSystem:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidPrincipal, p.Type)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPrincipal)
	}
	return nil
}

// Is reports whether p has one of the given types.
func (p Principal) Is(types ...PrincipalType) bool {
	for _, t := range types {
		if p.Type == t {
			return true
		}
	}
	return false
}

// Actor converts p into the audit attribution stored on transactions.
func (p Principal) Actor() ledger.Actor {
	return ledger.Actor{Type: string(p.Type), ID: p.ID}
}

// OwnerType maps end-user and vendor principals onto ledger owner types.
func (p Principal) OwnerType() (ledger.OwnerType, bool) {
	switch p.Type {
	case PrincipalUser:
		return ledger.OwnerUser, true
	case PrincipalVendor:
		return ledger.OwnerVendor, true
	}
	return "", false
}

// Owns reports whether key belongs to p.
func (p Principal) Owns(key ledger.AccountKey) bool {
	ownerType, ok := p.OwnerType()
	return ok && ownerType == key.OwnerType && p.ID == key.OwnerID
}

// CanRead reports whether p may read key's balance and history.
func (p Principal) CanRead(key ledger.AccountKey) bool {
	return p.Type == PrincipalAdmin || p.Owns(key)
}
