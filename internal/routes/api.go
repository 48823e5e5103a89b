package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/middleware"
)

// Register mounts the ledger API on r. Callers must have installed the
// Principal middleware on r already.
func Register(r fiber.Router, h Handlers, redeemLimit fiber.Handler) {
	anyone := middleware.RequireRole(auth.PrincipalUser, auth.PrincipalVendor, auth.PrincipalAdmin, auth.PrincipalSystem)
	admin := middleware.RequireRole(auth.PrincipalAdmin)
	system := middleware.RequireRole(auth.PrincipalSystem)
	vendor := middleware.RequireRole(auth.PrincipalVendor)
	vendorOrAdmin := middleware.RequireRole(auth.PrincipalVendor, auth.PrincipalAdmin)

	accounts := r.Group("/accounts/:ownerType/:ownerId/:currency")
	accounts.Get("/", anyone, h.Accounts.Balance)
	accounts.Get("/transactions", anyone, h.Accounts.Transactions)
	accounts.Get("/verify", admin, h.Accounts.Verify)

	pts := r.Group("/points")
	pts.Post("/redeem", middleware.RequireRole(auth.PrincipalUser, auth.PrincipalVendor, auth.PrincipalSystem), redeemLimit, h.Points.Redeem)
	pts.Post("/award", system, h.Points.Award)
	pts.Post("/adjust", admin, h.Points.Adjust)

	r.Post("/commissions", system, h.Commissions.Credit)

	r.Post("/payouts", vendor, h.Payouts.Create)
	r.Get("/payouts/:id", vendorOrAdmin, h.Payouts.Get)
	r.Post("/payouts/:id/decision", admin, h.Payouts.Decide)
	r.Post("/payouts/:id/complete", admin, h.Payouts.Complete)
	r.Post("/payouts/:id/cancel", vendor, h.Payouts.Cancel)
	r.Get("/vendors/:vendorId/payouts", vendorOrAdmin, h.Payouts.List)
}
