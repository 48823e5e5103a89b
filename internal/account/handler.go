package account

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/httputil"
	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	AccountID     string    `json:"account_id"`
	OwnerType     string    `json:"owner_type"`
	OwnerID       string    `json:"owner_id"`
	Currency      string    `json:"currency"`
	Balance       int64     `json:"balance"`
	TotalCredited int64     `json:"total_credited"`
	TotalDebited  int64     `json:"total_debited"`
	Held          int64     `json:"held"`
	Available     int64     `json:"available"`
	AsOf          time.Time `json:"as_of"`
}

// TransactionResponse is the wire form of a ledger transaction.
type TransactionResponse struct {
	ID                string    `json:"id"`
	Sequence          int64     `json:"sequence"`
	Type              string    `json:"type"`
	Amount            int64     `json:"amount"`
	BalanceBefore     int64     `json:"balance_before"`
	BalanceAfter      int64     `json:"balance_after"`
	RelatedEntityType string    `json:"related_entity_type,omitempty"`
	RelatedEntityID   string    `json:"related_entity_id,omitempty"`
	Description       string    `json:"description,omitempty"`
	ActorType         string    `json:"actor_type,omitempty"`
	ActorID           string    `json:"actor_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewTransactionResponse converts tx for JSON output.
func NewTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                tx.ID,
		Sequence:          tx.Sequence,
		Type:              string(tx.Type),
		Amount:            tx.Amount,
		BalanceBefore:     tx.BalanceBefore,
		BalanceAfter:      tx.BalanceAfter,
		RelatedEntityType: tx.Related.Type,
		RelatedEntityID:   tx.Related.ID,
		Description:       tx.Description,
		ActorType:         tx.Actor.Type,
		ActorID:           tx.Actor.ID,
		CreatedAt:         tx.CreatedAt,
	}
}

func authorizedKey(c *fiber.Ctx) (ledger.AccountKey, error) {
	key, err := httputil.AccountKeyParams(c)
	if err != nil {
		return ledger.AccountKey{}, err
	}
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return ledger.AccountKey{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if !p.CanRead(key) {
		return ledger.AccountKey{}, fiber.NewError(http.StatusForbidden, "not allowed to read this account")
	}
	return key, nil
}

// Balance returns the account balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	key, err := authorizedKey(c)
	if err != nil {
		return err
	}
	snap, err := h.service.Balance(c.UserContext(), key)
	if err != nil {
		return httputil.LedgerError(err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		AccountID:     snap.AccountID,
		OwnerType:     string(snap.Key.OwnerType),
		OwnerID:       snap.Key.OwnerID,
		Currency:      string(snap.Key.Currency),
		Balance:       snap.Balance,
		TotalCredited: snap.TotalCredited,
		TotalDebited:  snap.TotalDebited,
		Held:          snap.Held,
		Available:     snap.Available,
		AsOf:          snap.AsOf,
	})
}

// Transactions returns one page of the account's history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	key, err := authorizedKey(c)
	if err != nil {
		return err
	}
	filter := ledger.TransactionFilter{
		Type:     ledger.TxType(strings.ToUpper(c.Query("type"))),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown transaction type")
	}

	page, err := h.service.Transactions(c.UserContext(), key, filter)
	if err != nil {
		return httputil.LedgerError(err)
	}
	items := make([]TransactionResponse, 0, len(page.Transactions))
	for _, tx := range page.Transactions {
		items = append(items, NewTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"data": items,
		"pagination": fiber.Map{
			"page":      page.Page,
			"page_size": page.PageSize,
			"total":     page.Total,
			"last_page": page.LastPage(),
		},
	})
}

// Verify replays the account log; reserved for administrators.
func (h *Handler) Verify(c *fiber.Ctx) error {
	key, err := httputil.AccountKeyParams(c)
	if err != nil {
		return err
	}
	rep, err := h.service.Verify(c.UserContext(), key)
	if err != nil {
		return httputil.LedgerError(err)
	}
	status := http.StatusOK
	if !rep.Consistent() {
		status = http.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"account_id":     rep.AccountID,
		"transactions":   rep.Transactions,
		"stored_balance": rep.StoredBalance,
		"replayed":       rep.ReplayedTotal,
		"consistent":     rep.Consistent(),
		"problems":       rep.Problems,
	})
}
