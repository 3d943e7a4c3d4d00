package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Username: "alice", Email: "alice@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected an assigned user id")
	}

	authed, err := svc.Authenticate(ctx, Credentials{Username: "alice", Password: "password123"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, authed.ID)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Username: "alice", Password: "wrongpass1"}); err == nil {
		t.Fatal("expected bad-password authentication to fail")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Username: "bob", Password: "password123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Username: "bob", Password: "password456"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestListExcludesCaller(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	alice, _ := svc.Register(ctx, Credentials{Username: "alice", Password: "password123"})
	bob, _ := svc.Register(ctx, Credentials{Username: "bob", Password: "password123"})

	users, err := svc.List(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].ID != bob.ID {
		t.Fatalf("expected only bob, got %+v", users)
	}
}

func TestExists(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, _ := svc.Register(ctx, Credentials{Username: "carol", Password: "password123"})

	ok, err := svc.Exists(ctx, user.ID)
	if err != nil || !ok {
		t.Fatalf("expected user %d to exist, ok=%v err=%v", user.ID, ok, err)
	}
	ok, err = svc.Exists(ctx, 999)
	if err != nil || ok {
		t.Fatalf("expected user 999 to not exist, ok=%v err=%v", ok, err)
	}
}
