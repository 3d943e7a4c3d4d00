package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
)

func TestBalanceCreatesWalletOnFirstQuery(t *testing.T) {
	ctx := context.Background()
	users := identity.NewService(identity.NewMemoryRepository())
	store := ledger.NewInMemory()
	svc := NewService(store, users)

	user, err := users.Register(ctx, identity.Credentials{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	view, err := svc.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if view.User.Username != "alice" {
		t.Fatalf("username = %q, want alice", view.User.Username)
	}
	if !view.Wallet.Balance.Equal(decimal.Zero) {
		t.Fatalf("fresh wallet balance = %s, want 0", view.Wallet.Balance)
	}

	ledger.SeedBalance(store, user.ID, decimal.RequireFromString("42.50"))
	view, err = svc.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance after seed: %v", err)
	}
	if got := view.Wallet.Balance.StringFixed(2); got != "42.50" {
		t.Fatalf("balance = %s, want 42.50", got)
	}
}

func TestBalanceUnknownUser(t *testing.T) {
	users := identity.NewService(identity.NewMemoryRepository())
	svc := NewService(ledger.NewInMemory(), users)

	_, err := svc.Balance(context.Background(), 999)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("err = %v, want identity.ErrNotFound", err)
	}
}
