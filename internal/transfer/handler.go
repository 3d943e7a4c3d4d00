package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/minte-pay/minte/internal/ledger"
)

// Handler exposes the transfer, deposit and history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ReceiverID int64           `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type historyItemResponse struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	Counterparty   string `json:"counterparty"`
	CounterpartyID int64  `json:"counterparty_id"`
	Amount         string `json:"amount"`
	Timestamp      string `json:"timestamp"`
	ReceiptRef     string `json:"receipt_ref"`
}

// Transfer handles POST /transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	senderID, _ := c.Locals("user_id").(int64)

	res, err := h.service.Transfer(c.UserContext(), senderID, req.ReceiverID, req.Amount)
	if err != nil {
		return mapTransferError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":        "Transfer successful",
		"transaction_id": res.Entry.ID,
		"sender_balance": res.SenderBalance.StringFixed(2),
		"amount":         res.Entry.Amount.StringFixed(2),
		"receiver_id":    req.ReceiverID,
	})
}

// Deposit handles POST /deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	userID, _ := c.Locals("user_id").(int64)

	wallet, err := h.service.Deposit(c.UserContext(), userID, req.Amount)
	if err != nil {
		return mapTransferError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Deposit successful",
		"balance": wallet.Balance.StringFixed(2),
	})
}

// History handles GET /transactions.
func (h *Handler) History(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(int64)

	items, err := h.service.History(c.UserContext(), userID)
	if err != nil {
		return mapTransferError(err)
	}

	out := make([]historyItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, historyItemResponse{
			ID:             item.ID,
			Type:           item.Direction,
			Counterparty:   item.Counterparty,
			CounterpartyID: item.CounterpartyID,
			Amount:         item.Amount.StringFixed(2),
			Timestamp:      item.Timestamp.UTC().Format(time.RFC3339),
			ReceiptRef:     item.ReceiptRef,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": out,
		"count":        len(out),
	})
}

func mapTransferError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTransient):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
