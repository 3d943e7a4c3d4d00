package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memoryStore keeps the same locking discipline as the Postgres backend: one
// mutex per wallet, always acquired in ascending user-id order. That makes the
// deadlock-avoidance property testable without a database.
type memoryStore struct {
	mu      sync.RWMutex
	wallets map[int64]*memWallet

	entriesMu sync.Mutex
	entries   []Entry

	nextWalletID int64
	nextEntryID  int64
}

type memWallet struct {
	mu sync.Mutex
	w  Wallet
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and running without a database.
func NewInMemory() Store {
	return &memoryStore{wallets: make(map[int64]*memWallet)}
}

func (s *memoryStore) EnsureWallet(_ context.Context, userID int64) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *memoryStore) ensureLocked(userID int64) Wallet {
	if mw, ok := s.wallets[userID]; ok {
		return mw.w
	}
	s.nextWalletID++
	now := time.Now().UTC()
	mw := &memWallet{w: Wallet{
		ID:        s.nextWalletID,
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.wallets[userID] = mw
	return mw.w
}

func (s *memoryStore) WalletFor(_ context.Context, userID int64) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mw, ok := s.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.w, nil
}

func (s *memoryStore) Transfer(_ context.Context, senderID, receiverID int64, amount decimal.Decimal) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("amount must be positive")
	}

	s.mu.RLock()
	sender, senderOK := s.wallets[senderID]
	receiver, receiverOK := s.wallets[receiverID]
	s.mu.RUnlock()

	if !senderOK {
		return TransferResult{}, fmt.Errorf("sender %d: %w", senderID, ErrWalletNotFound)
	}
	if !receiverOK {
		return TransferResult{}, fmt.Errorf("receiver %d: %w", receiverID, ErrWalletNotFound)
	}

	// Lock both wallets in ascending user-id order, blocking until held.
	first, second := sender, receiver
	if receiverID < senderID {
		first, second = receiver, sender
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if sender.w.Balance.LessThan(amount) {
		return TransferResult{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	sender.w.Balance = sender.w.Balance.Sub(amount)
	sender.w.UpdatedAt = now
	receiver.w.Balance = receiver.w.Balance.Add(amount)
	receiver.w.UpdatedAt = now

	s.entriesMu.Lock()
	s.nextEntryID++
	entry := Entry{
		ID:         s.nextEntryID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		CreatedAt:  now,
	}
	s.entries = append(s.entries, entry)
	s.entriesMu.Unlock()

	return TransferResult{
		Entry:           entry,
		SenderBalance:   sender.w.Balance,
		ReceiverBalance: receiver.w.Balance,
	}, nil
}

func (s *memoryStore) Deposit(_ context.Context, userID int64, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, fmt.Errorf("amount must be positive")
	}

	s.mu.Lock()
	s.ensureLocked(userID)
	mw := s.wallets[userID]
	s.mu.Unlock()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.w.Balance = mw.w.Balance.Add(amount)
	mw.w.UpdatedAt = time.Now().UTC()
	return mw.w, nil
}

func (s *memoryStore) History(_ context.Context, userID int64) ([]Entry, error) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	var entries []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.SenderID == userID || e.ReceiverID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *memoryStore) Entry(_ context.Context, id int64) (Entry, error) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (s *memoryStore) AttachReceipt(_ context.Context, entryID int64, ref string) error {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			if s.entries[i].ReceiptRef != "" {
				return ErrReceiptAlreadySet
			}
			s.entries[i].ReceiptRef = ref
			return nil
		}
	}
	return ErrEntryNotFound
}
