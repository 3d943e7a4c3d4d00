package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/transfer"
	"github.com/minte-pay/minte/internal/wallet"
)

// RegisterWalletRoutes wires the authenticated wallet endpoints. The
// idempotency middleware, when present, guards the transfer route only.
func RegisterWalletRoutes(r fiber.Router, transfers *transfer.Handler, wallets *wallet.Handler, ids *identity.Handler, idem fiber.Handler) {
	if idem != nil {
		r.Post("/transfer", idem, transfers.Transfer)
	} else {
		r.Post("/transfer", transfers.Transfer)
	}
	r.Post("/deposit", transfers.Deposit)
	r.Get("/balance", wallets.Balance)
	r.Get("/transactions", transfers.History)
	r.Get("/users", ids.List)
}
