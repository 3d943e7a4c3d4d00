package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Balance  string `json:"balance"`
}

// Balance handles GET /api/wallet/balance for the authenticated user.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)

	view, err := h.service.Balance(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) || errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		if errors.Is(err, ledger.ErrTransient) {
			return fiber.NewError(http.StatusServiceUnavailable, "wallet temporarily unavailable, retry shortly")
		}
		return fiber.NewError(http.StatusInternalServerError, "could not load balance")
	}

	return c.JSON(balanceResponse{
		UserID:   view.User.ID,
		Username: view.User.Username,
		Balance:  view.Wallet.Balance.StringFixed(2),
	})
}
