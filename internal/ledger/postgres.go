package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and ledger entries in PostgreSQL. Row-level
// pessimistic locks (SELECT ... FOR UPDATE) serialize transfers that touch the
// same wallet pair; disjoint pairs proceed in parallel.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, user_id, balance::text, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		balance string
	)
	if err := row.Scan(&w.ID, &w.UserID, &balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	w.Balance = parsed
	return w, nil
}

// EnsureWallet creates the wallet row with a zero balance if absent. The
// uniqueness constraint on user_id makes concurrent calls race-free.
func (s *PostgresStore) EnsureWallet(ctx context.Context, userID int64) (Wallet, error) {
	if _, err := s.db.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1)
        ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Wallet{}, wrapTransient(err)
	}
	return s.WalletFor(ctx, userID)
}

// WalletFor fetches the wallet for a user without creating it.
func (s *PostgresStore) WalletFor(ctx context.Context, userID int64) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, wrapTransient(err)
	}
	return w, nil
}

// Transfer moves amount between two wallets inside one transaction: lock both
// rows in ascending user-id order, re-check the sender balance under the lock,
// persist both balances, append the ledger entry, commit.
func (s *PostgresStore) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("amount must be positive")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, wrapTransient(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	wallets, err := lockWallets(ctx, tx, senderID, receiverID)
	if err != nil {
		return TransferResult{}, err
	}

	sender, ok := wallets[senderID]
	if !ok {
		return TransferResult{}, fmt.Errorf("sender %d: %w", senderID, ErrWalletNotFound)
	}
	receiver, ok := wallets[receiverID]
	if !ok {
		return TransferResult{}, fmt.Errorf("receiver %d: %w", receiverID, ErrWalletNotFound)
	}

	// The authoritative balance check. Anything observed before the lock was
	// advisory only.
	if sender.Balance.LessThan(amount) {
		return TransferResult{}, ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(amount)
	receiver.Balance = receiver.Balance.Add(amount)

	if err := saveWallet(ctx, tx, sender); err != nil {
		return TransferResult{}, wrapTransient(err)
	}
	if err := saveWallet(ctx, tx, receiver); err != nil {
		return TransferResult{}, wrapTransient(err)
	}

	entry := Entry{SenderID: senderID, ReceiverID: receiverID, Amount: amount}
	row := tx.QueryRow(ctx, `INSERT INTO transactions (sender_id, receiver_id, amount)
        VALUES ($1, $2, $3::numeric) RETURNING id, created_at`,
		senderID, receiverID, amount.StringFixed(2))
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return TransferResult{}, wrapTransient(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, wrapTransient(err)
	}

	return TransferResult{
		Entry:           entry,
		SenderBalance:   sender.Balance,
		ReceiverBalance: receiver.Balance,
	}, nil
}

// Deposit adds amount to a single wallet, creating it first if absent.
func (s *PostgresStore) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, fmt.Errorf("amount must be positive")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, wrapTransient(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1)
        ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Wallet{}, wrapTransient(err)
	}

	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	wallet, err := scanWallet(row)
	if err != nil {
		return Wallet{}, wrapTransient(err)
	}

	wallet.Balance = wallet.Balance.Add(amount)
	if err := saveWallet(ctx, tx, wallet); err != nil {
		return Wallet{}, wrapTransient(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, wrapTransient(err)
	}

	return wallet, nil
}

// History returns every entry where the user is sender or receiver, newest
// first.
func (s *PostgresStore) History(ctx context.Context, userID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, sender_id, receiver_id, amount::text, created_at, receipt_ref
        FROM transactions
        WHERE sender_id = $1 OR receiver_id = $1
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, wrapTransient(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Entry fetches a single ledger entry by id.
func (s *PostgresStore) Entry(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT id, sender_id, receiver_id, amount::text, created_at, receipt_ref
        FROM transactions WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, wrapTransient(err)
	}
	return entry, nil
}

// AttachReceipt backfills the receipt reference exactly once. The guard on the
// empty reference keeps every other field immutable.
func (s *PostgresStore) AttachReceipt(ctx context.Context, entryID int64, ref string) error {
	cmd, err := s.db.Exec(ctx, `UPDATE transactions SET receipt_ref = $1
        WHERE id = $2 AND receipt_ref = ''`, ref, entryID)
	if err != nil {
		return wrapTransient(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrReceiptAlreadySet
	}
	return nil
}

// lockWallets acquires FOR UPDATE locks on both wallet rows. ORDER BY user_id
// makes every transaction request the locks in the same global order, so two
// opposite-direction transfers cannot circular-wait.
func lockWallets(ctx context.Context, tx pgx.Tx, userIDs ...int64) (map[int64]Wallet, error) {
	rows, err := tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = ANY($1) ORDER BY user_id FOR UPDATE`, userIDs)
	if err != nil {
		return nil, wrapTransient(err)
	}
	defer rows.Close()

	wallets := make(map[int64]Wallet, len(userIDs))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets[w.UserID] = w
	}
	return wallets, rows.Err()
}

// saveWallet persists the balance and bumps the updated timestamp inside the
// caller's transaction.
func saveWallet(ctx context.Context, tx pgx.Tx, w Wallet) error {
	_, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = now()
        WHERE id = $2`, w.Balance.StringFixed(2), w.ID)
	return err
}

type entryRow interface {
	Scan(dest ...any) error
}

func scanEntry(row entryRow) (Entry, error) {
	var (
		entry  Entry
		amount string
	)
	if err := row.Scan(&entry.ID, &entry.SenderID, &entry.ReceiverID, &amount, &entry.CreatedAt, &entry.ReceiptRef); err != nil {
		return Entry{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Entry{}, fmt.Errorf("parse amount: %w", err)
	}
	entry.Amount = parsed
	return entry, nil
}

// wrapTransient tags lock-wait timeouts, deadlock aborts and cancelled commits
// as ErrTransient so callers know a retry is safe.
func wrapTransient(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
