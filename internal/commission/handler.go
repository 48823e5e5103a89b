package commission

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/account"
	"github.com/congo-pay/loyalty/internal/httputil"
)

// Handler exposes the commission endpoint used by order settlement.
type Handler struct {
	service *Service
}

// NewHandler constructs a commission handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type creditRequest struct {
	VendorID string `json:"vendor_id" validate:"required,max=64"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	OrderRef string `json:"order_ref" validate:"required,max=128"`
}

// Credit accrues a commission for a settled order.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	tx, err := h.service.Credit(c.UserContext(), req.VendorID, req.Amount, req.OrderRef)
	if err != nil {
		return httputil.LedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(account.NewTransactionResponse(tx))
}
