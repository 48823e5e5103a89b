package points

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/account"
	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/httputil"
	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/middleware"
)

// Handler exposes point endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a point handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type ownerRef struct {
	OwnerType string `json:"owner_type" validate:"required,oneof=USER VENDOR user vendor"`
	OwnerID   string `json:"owner_id" validate:"required,max=64"`
}

func (o ownerRef) key() ledger.AccountKey {
	return ledger.PointsKey(ledger.OwnerType(strings.ToUpper(o.OwnerType)), o.OwnerID)
}

type redeemRequest struct {
	ownerRef
	Points   int64  `json:"points" validate:"required,gt=0"`
	OrderRef string `json:"order_ref" validate:"required,max=128"`
}

type adjustRequest struct {
	ownerRef
	Points        int64  `json:"points" validate:"required"`
	Description   string `json:"description" validate:"required,max=255"`
	AllowNegative bool   `json:"allow_negative"`
}

type awardRequest struct {
	ownerRef
	Points   int64  `json:"points" validate:"required,gt=0"`
	OrderRef string `json:"order_ref" validate:"required,max=128"`
}

// Redeem spends points against an order. End users and vendors may only
// redeem from their own account; SYSTEM may redeem on behalf of any owner.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	key := req.key()
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if !p.Is(auth.PrincipalSystem) && !p.Owns(key) {
		return fiber.NewError(http.StatusForbidden, "cannot redeem from another owner's account")
	}

	res, err := h.service.Redeem(c.UserContext(), key, req.Points, req.OrderRef)
	if err != nil {
		return httputil.LedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"discount_amount":   res.DiscountAmount,
		"remaining_balance": res.RemainingBalance,
		"conversion_rate":   h.service.ConversionRate(),
		"transaction":       account.NewTransactionResponse(res.Transaction),
	})
}

// Adjust posts a privileged manual adjustment attributed to the caller.
func (h *Handler) Adjust(c *fiber.Ctx) error {
	var req adjustRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	in := AdjustInput{
		Key:           req.key(),
		SignedPoints:  req.Points,
		Description:   req.Description,
		Actor:         p.Actor(),
		AllowNegative: req.AllowNegative,
	}
	if k := c.Get(middleware.IdempotencyHeader); k != "" {
		in.IdempotencyKey = "adjust:" + k
	}
	tx, err := h.service.Adjust(c.UserContext(), in)
	if err != nil {
		return httputil.LedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(account.NewTransactionResponse(tx))
}

// Award credits points earned on a settled order.
func (h *Handler) Award(c *fiber.Ctx) error {
	var req awardRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		return err
	}
	tx, err := h.service.Award(c.UserContext(), req.key(), req.Points, req.OrderRef)
	if err != nil {
		return httputil.LedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(account.NewTransactionResponse(tx))
}
