package wallet

import (
	"context"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
)

// Service exposes single-wallet views backed by the ledger store.
type Service struct {
	store ledger.Store
	users *identity.Service
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, users *identity.Service) *Service {
	return &Service{store: store, users: users}
}

// BalanceView pairs a wallet with its owner.
type BalanceView struct {
	User   identity.User
	Wallet ledger.Wallet
}

// Balance returns the user's wallet, creating it lazily on first query.
func (s *Service) Balance(ctx context.Context, userID int64) (BalanceView, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}
	wallet, err := s.store.EnsureWallet(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{User: user, Wallet: wallet}, nil
}
