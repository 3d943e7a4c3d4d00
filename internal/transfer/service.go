package transfer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
	"github.com/minte-pay/minte/internal/notification"
)

var (
	// ErrSelfTransfer rejects transfers where sender and receiver are the same user.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrInvalidAmount rejects non-positive amounts or amounts with more than
	// two fractional digits.
	ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")

	// ErrReceiverNotFound rejects transfers to unknown users.
	ErrReceiverNotFound = errors.New("receiver not found")
)

// ReceiptQueue accepts transaction ids for asynchronous receipt generation.
// Submission is fire-and-forget: the transfer outcome never depends on it.
type ReceiptQueue interface {
	Submit(entryID int64)
}

// Service orchestrates transfers: validation before any lock, then one atomic
// store operation, then the out-of-band side effects.
type Service struct {
	store    ledger.Store
	users    *identity.Service
	receipts ReceiptQueue
	notifier notification.Notifier
}

// NewService builds the transfer engine.
func NewService(store ledger.Store, users *identity.Service, receipts ReceiptQueue, notifier notification.Notifier) *Service {
	return &Service{store: store, users: users, receipts: receipts, notifier: notifier}
}

// Result describes a committed transfer.
type Result struct {
	Entry         ledger.Entry
	SenderBalance decimal.Decimal
}

// ValidateAmount enforces the wire-level amount contract: strictly positive,
// at most two fractional digits as written.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.Exponent() < -2 {
		return ErrInvalidAmount
	}
	return nil
}

// Transfer moves amount from sender to receiver. Preconditions are checked
// before any lock is taken; the balance check itself is re-verified by the
// store under the row locks.
func (s *Service) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (Result, error) {
	if err := ValidateAmount(amount); err != nil {
		return Result{}, err
	}
	if senderID == receiverID {
		return Result{}, ErrSelfTransfer
	}

	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, ErrReceiverNotFound
	}

	// Create-if-absent for both wallets; idempotent and safe before locking.
	if _, err := s.store.EnsureWallet(ctx, senderID); err != nil {
		return Result{}, err
	}
	if _, err := s.store.EnsureWallet(ctx, receiverID); err != nil {
		return Result{}, err
	}

	res, err := s.store.Transfer(ctx, senderID, receiverID, amount)
	if err != nil {
		return Result{}, err
	}

	// Side effects after commit only. Neither may fail the transfer.
	if s.receipts != nil {
		s.receipts.Submit(res.Entry.ID)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: strconv.FormatInt(receiverID, 10),
			Body:        fmt.Sprintf("You received %s from user %d", amount.StringFixed(2), senderID),
		})
	}

	return Result{Entry: res.Entry, SenderBalance: res.SenderBalance}, nil
}

// Deposit adds funds to a single wallet. No ledger entry is written for
// deposits.
func (s *Service) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (ledger.Wallet, error) {
	if err := ValidateAmount(amount); err != nil {
		return ledger.Wallet{}, err
	}
	return s.store.Deposit(ctx, userID, amount)
}

// HistoryItem is one ledger entry viewed from a user's perspective.
type HistoryItem struct {
	ID             int64
	Direction      string // "sent" or "received"
	CounterpartyID int64
	Counterparty   string
	Amount         decimal.Decimal
	Timestamp      time.Time
	ReceiptRef     string
}

// History returns the caller's transactions, newest first, tagged by
// direction.
func (s *Service) History(ctx context.Context, userID int64) ([]HistoryItem, error) {
	entries, err := s.store.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	resolve := func(id int64) string {
		if name, ok := names[id]; ok {
			return name
		}
		name := ""
		if user, err := s.users.Get(ctx, id); err == nil {
			name = user.Username
		}
		names[id] = name
		return name
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, entry := range entries {
		item := HistoryItem{
			ID:         entry.ID,
			Amount:     entry.Amount,
			Timestamp:  entry.CreatedAt,
			ReceiptRef: entry.ReceiptRef,
		}
		if entry.SenderID == userID {
			item.Direction = "sent"
			item.CounterpartyID = entry.ReceiverID
		} else {
			item.Direction = "received"
			item.CounterpartyID = entry.SenderID
		}
		item.Counterparty = resolve(item.CounterpartyID)
		items = append(items, item)
	}
	return items, nil
}
