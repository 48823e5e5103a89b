package httputil

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/ledger"
)

// LedgerError maps ledger failures onto HTTP errors. Unknown errors become
// 500 without leaking their text.
func LedgerError(err error) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAccountKey),
		errors.Is(err, ledger.ErrActorRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTransientFailure), errors.Is(err, ledger.ErrStorageUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "ledger temporarily unavailable, retry with the same idempotency key")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
