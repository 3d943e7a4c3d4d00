package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the sender's balance cannot cover the
	// requested amount at the time the row lock is held.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound indicates a wallet row does not exist for the user.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrEntryNotFound indicates no ledger entry exists with the given id.
	ErrEntryNotFound = errors.New("transaction not found")

	// ErrReceiptAlreadySet indicates the one-time receipt backfill was
	// attempted on an entry that already carries a receipt reference.
	ErrReceiptAlreadySet = errors.New("receipt reference already set")

	// ErrTransient marks lock-wait or commit failures that left no visible
	// effect. Callers may retry the whole operation.
	ErrTransient = errors.New("transient store failure")
)

// Wallet is the per-user balance row. Mutated only under a row lock inside a
// transfer or deposit.
type Wallet struct {
	ID        int64
	UserID    int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one immutable ledger record of a completed transfer. Only the
// receipt reference may be filled in, once, after creation.
type Entry struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Amount     decimal.Decimal
	CreatedAt  time.Time
	ReceiptRef string
}

// TransferResult carries the ledger entry and the post-commit balances.
type TransferResult struct {
	Entry           Entry
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

// Store is the contract implemented by ledger backends. Transfer and Deposit
// are atomic: both wallets are locked in ascending user-id order, the balance
// check is re-verified under the lock, and the entry append commits in the
// same unit as the balance mutation or not at all.
type Store interface {
	EnsureWallet(ctx context.Context, userID int64) (Wallet, error)
	WalletFor(ctx context.Context, userID int64) (Wallet, error)
	Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (TransferResult, error)
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (Wallet, error)
	History(ctx context.Context, userID int64) ([]Entry, error)
	Entry(ctx context.Context, id int64) (Entry, error)
	AttachReceipt(ctx context.Context, entryID int64, ref string) error
}
