package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that sets a wallet balance directly when using
// the in-memory store, creating the wallet if needed.
func SeedBalance(s Store, userID int64, balance decimal.Decimal) {
	mem, ok := s.(*memoryStore)
	if !ok {
		return
	}
	mem.mu.Lock()
	mem.ensureLocked(userID)
	mw := mem.wallets[userID]
	mem.mu.Unlock()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.w.Balance = balance
}
