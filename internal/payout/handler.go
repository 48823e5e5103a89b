package payout

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/httputil"
	"github.com/congo-pay/loyalty/internal/middleware"
)

// Handler exposes payout endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	BankAccountID string `json:"bank_account_id" validate:"required,max=64"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED approved rejected"`
}

type requestResponse struct {
	ID            string     `json:"id"`
	VendorID      string     `json:"vendor_id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	BankAccountID string     `json:"bank_account_id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toResponse(r Request) requestResponse {
	return requestResponse{
		ID:            r.ID,
		VendorID:      r.VendorID,
		Amount:        r.Amount,
		Status:        string(r.Status),
		BankAccountID: r.BankAccountID,
		TransactionID: r.TransactionID,
		RequestedAt:   r.RequestedAt,
		DecidedAt:     r.DecidedAt,
		DecidedBy:     r.DecidedBy,
		CompletedAt:   r.CompletedAt,
	}
}

// Create opens a payout request for the calling vendor.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := h.service.Request(c.UserContext(), p.ID, req.Amount, req.BankAccountID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(out))
}

// Get returns one request to its vendor or an administrator.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	if !canView(p, out.VendorID) {
		// Do not reveal other vendors' request ids.
		return mapError(ErrNotFound)
	}
	return c.JSON(toResponse(out))
}

// List returns a vendor's requests, optionally filtered by ?status=.
func (h *Handler) List(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	vendorID := c.Params("vendorId")
	if !canView(p, vendorID) {
		return fiber.NewError(http.StatusForbidden, "not allowed to list these payouts")
	}
	reqs, err := h.service.List(c.UserContext(), vendorID, Status(strings.ToUpper(c.Query("status"))))
	if err != nil {
		return mapError(err)
	}
	items := make([]requestResponse, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, toResponse(r))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Decide approves or rejects a pending request.
func (h *Handler) Decide(c *fiber.Ctx) error {
	var req decisionRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := h.service.Decide(c.UserContext(), c.Params("id"), Status(strings.ToUpper(req.Decision)), p.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(out))
}

// Complete debits the wallet for an approved request.
func (h *Handler) Complete(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := h.service.Complete(c.UserContext(), c.Params("id"), p.Actor())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(out))
}

// Cancel withdraws the calling vendor's pending request.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := h.service.Cancel(c.UserContext(), c.Params("id"), p.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(out))
}

func canView(p auth.Principal, vendorID string) bool {
	return p.Is(auth.PrincipalAdmin) || (p.Is(auth.PrincipalVendor) && p.ID == vendorID)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "payout request not found")
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrExceedsAvailable):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDecision),
		errors.Is(err, ErrBankAccountRequired), errors.Is(err, ErrInvalidStatus):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return httputil.LedgerError(err)
}
