package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/minte-pay/minte/internal/config"
	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/infra"
	"github.com/minte-pay/minte/internal/ledger"
	"github.com/minte-pay/minte/internal/logging"
	"github.com/minte-pay/minte/internal/notification"
	"github.com/minte-pay/minte/internal/transfer"
)

type seedUser struct {
	username string
	email    string
	password string
	balance  string
}

var seedUsers = []seedUser{
	{"alice", "alice@example.com", "alicepass123", "1000.00"},
	{"bob", "bob@example.com", "bobpass123", "500.00"},
	{"charlie", "charlie@example.com", "charliepass123", "750.00"},
	{"diana", "diana@example.com", "dianapass123", "250.00"},
	{"eve", "eve@example.com", "evepass123", "100.00"},
}

type seedTransfer struct {
	from, to string
	amount   string
}

var seedTransfers = []seedTransfer{
	{"alice", "bob", "50.00"},
	{"bob", "charlie", "25.50"},
	{"charlie", "diana", "10.00"},
	{"alice", "eve", "75.25"},
	{"diana", "alice", "5.00"},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must be set to seed")
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := infra.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	store := ledger.NewPostgres(db)
	ids := identity.NewService(identity.NewPostgresRepository(db))
	transfers := transfer.NewService(store, ids, nil, notification.NewLoggerNotifier(logger))

	userIDs := map[string]int64{}
	for _, u := range seedUsers {
		user, err := ids.Register(ctx, identity.Credentials{Username: u.username, Email: u.email, Password: u.password})
		if err != nil {
			if errors.Is(err, identity.ErrUsernameTaken) {
				logger.Info("user already seeded, skipping", "username", u.username)
				existing, err := ids.Authenticate(ctx, identity.Credentials{Username: u.username, Password: u.password})
				if err != nil {
					logger.Error("authenticate existing user", "username", u.username, "error", err)
					os.Exit(1)
				}
				userIDs[u.username] = existing.ID
				continue
			}
			logger.Error("register user", "username", u.username, "error", err)
			os.Exit(1)
		}
		userIDs[u.username] = user.ID

		wallet, err := transfers.Deposit(ctx, user.ID, decimal.RequireFromString(u.balance))
		if err != nil {
			logger.Error("deposit opening balance", "username", u.username, "error", err)
			os.Exit(1)
		}
		logger.Info("user seeded", "username", u.username, "user_id", user.ID, "balance", wallet.Balance.StringFixed(2))
	}

	for _, tr := range seedTransfers {
		res, err := transfers.Transfer(ctx, userIDs[tr.from], userIDs[tr.to], decimal.RequireFromString(tr.amount))
		if err != nil {
			logger.Warn("sample transfer skipped", "from", tr.from, "to", tr.to, "error", err)
			continue
		}
		logger.Info("sample transfer seeded", "from", tr.from, "to", tr.to, "amount", tr.amount, "transaction_id", res.Entry.ID)
	}

	logger.Info("seeding complete", "users", len(seedUsers))
}
