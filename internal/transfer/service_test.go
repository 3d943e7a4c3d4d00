package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
)

type recordingQueue struct {
	submitted []int64
}

func (q *recordingQueue) Submit(entryID int64) {
	q.submitted = append(q.submitted, entryID)
}

func newFixture(t *testing.T) (*Service, *recordingQueue, int64, int64) {
	t.Helper()
	ctx := context.Background()
	users := identity.NewService(identity.NewMemoryRepository())
	store := ledger.NewInMemory()
	queue := &recordingQueue{}
	svc := NewService(store, users, queue, nil)

	alice, err := users.Register(ctx, identity.Credentials{Username: "alice", Email: "a@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := users.Register(ctx, identity.Credentials{Username: "bob", Email: "b@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if _, err := svc.Deposit(ctx, alice.ID, decimal.RequireFromString("100.00")); err != nil {
		t.Fatalf("fund alice: %v", err)
	}
	return svc, queue, alice.ID, bob.ID
}

func TestTransferMovesFundsAndQueuesReceipt(t *testing.T) {
	ctx := context.Background()
	svc, queue, aliceID, bobID := newFixture(t)

	res, err := svc.Transfer(ctx, aliceID, bobID, decimal.RequireFromString("30.00"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := res.SenderBalance.StringFixed(2); got != "70.00" {
		t.Fatalf("sender balance = %s, want 70.00", got)
	}
	if len(queue.submitted) != 1 || queue.submitted[0] != res.Entry.ID {
		t.Fatalf("receipt queue got %v, want [%d]", queue.submitted, res.Entry.ID)
	}
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	svc, queue, aliceID, bobID := newFixture(t)

	cases := []struct {
		name     string
		sender   int64
		receiver int64
		amount   string
		want     error
	}{
		{"zero amount", aliceID, bobID, "0", ErrInvalidAmount},
		{"negative amount", aliceID, bobID, "-5.00", ErrInvalidAmount},
		{"three decimal places", aliceID, bobID, "1.999", ErrInvalidAmount},
		{"self transfer", aliceID, aliceID, "10.00", ErrSelfTransfer},
		{"unknown receiver", aliceID, 999, "10.00", ErrReceiverNotFound},
		{"insufficient funds", aliceID, bobID, "100.01", ledger.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, tc.sender, tc.receiver, decimal.RequireFromString(tc.amount))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if len(queue.submitted) != 0 {
		t.Fatalf("failed transfers must not queue receipts, got %v", queue.submitted)
	}
}

func TestTransferSelfCheckBeforeAmountOfFunds(t *testing.T) {
	// A self transfer with an invalid amount reports the amount error first,
	// validation order is amount then receiver.
	ctx := context.Background()
	svc, _, aliceID, _ := newFixture(t)

	_, err := svc.Transfer(ctx, aliceID, aliceID, decimal.RequireFromString("0"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestDepositRejectsInvalidAmount(t *testing.T) {
	ctx := context.Background()
	svc, _, aliceID, _ := newFixture(t)

	if _, err := svc.Deposit(ctx, aliceID, decimal.RequireFromString("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Deposit(ctx, aliceID, decimal.RequireFromString("0.001")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestHistoryTagsDirections(t *testing.T) {
	ctx := context.Background()
	svc, _, aliceID, bobID := newFixture(t)

	if _, err := svc.Deposit(ctx, bobID, decimal.RequireFromString("50.00")); err != nil {
		t.Fatalf("fund bob: %v", err)
	}
	if _, err := svc.Transfer(ctx, aliceID, bobID, decimal.RequireFromString("20.00")); err != nil {
		t.Fatalf("transfer one: %v", err)
	}
	if _, err := svc.Transfer(ctx, bobID, aliceID, decimal.RequireFromString("5.00")); err != nil {
		t.Fatalf("transfer two: %v", err)
	}

	items, err := svc.History(ctx, aliceID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("history length = %d, want 2", len(items))
	}

	// Newest first: the 5.00 received, then the 20.00 sent.
	if items[0].Direction != "received" || items[0].Counterparty != "bob" {
		t.Fatalf("newest item = %+v, want received from bob", items[0])
	}
	if !items[0].Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("newest amount = %s, want 5.00", items[0].Amount)
	}
	if items[1].Direction != "sent" || items[1].CounterpartyID != bobID {
		t.Fatalf("older item = %+v, want sent to bob", items[1])
	}

	// Deposits never appear in history.
	for _, item := range items {
		if item.Amount.Equal(decimal.RequireFromString("100.00")) || item.Amount.Equal(decimal.RequireFromString("50.00")) {
			t.Fatalf("deposit leaked into history: %+v", item)
		}
	}
}
