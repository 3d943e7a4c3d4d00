package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
)

// Ledger is the slice of the ledger store the generator needs.
type Ledger interface {
	Entry(ctx context.Context, id int64) (ledger.Entry, error)
	AttachReceipt(ctx context.Context, entryID int64, ref string) error
}

// UserDirectory resolves user ids to profiles for receipt rendering.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (identity.User, error)
}

// Generator renders transfer receipts in the background. Submissions are
// fire and forget: a full queue drops the job and a render failure only
// logs, the transfer itself is already committed.
type Generator struct {
	jobs   chan int64
	store  Ledger
	users  UserDirectory
	dir    string
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewGenerator builds a generator writing receipt files under dir.
func NewGenerator(store Ledger, users UserDirectory, dir string, logger *slog.Logger) *Generator {
	return &Generator{
		jobs:   make(chan int64, 256),
		store:  store,
		users:  users,
		dir:    dir,
		logger: logger,
	}
}

// Start launches the worker goroutines.
func (g *Generator) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.run()
	}
}

// Submit enqueues a receipt job. It never blocks the caller.
func (g *Generator) Submit(entryID int64) {
	select {
	case g.jobs <- entryID:
	default:
		g.logger.Warn("receipt queue full, dropping job", "transaction_id", entryID)
	}
}

// Stop drains the queue and waits for in-flight receipts to finish.
func (g *Generator) Stop() {
	close(g.jobs)
	g.wg.Wait()
}

func (g *Generator) run() {
	defer g.wg.Done()
	for entryID := range g.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := g.generate(ctx, entryID); err != nil {
			g.logger.Error("receipt generation failed", "transaction_id", entryID, "error", err)
		}
		cancel()
	}
}

func (g *Generator) generate(ctx context.Context, entryID int64) error {
	entry, err := g.store.Entry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if entry.ReceiptRef != "" {
		return nil
	}

	sender := g.username(ctx, entry.SenderID)
	receiver := g.username(ctx, entry.ReceiverID)

	name := fmt.Sprintf("receipt_%d_%s.txt", entry.ID, entry.CreatedAt.UTC().Format("20060102_150405"))
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create receipts dir: %w", err)
	}

	body := fmt.Sprintf(
		"TRANSFER RECEIPT\n================\nTransaction: %d\nDate:        %s\nFrom:        %s (user %d)\nTo:          %s (user %d)\nAmount:      %s\n",
		entry.ID,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		sender, entry.SenderID,
		receiver, entry.ReceiverID,
		entry.Amount.StringFixed(2),
	)
	if err := os.WriteFile(filepath.Join(g.dir, name), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	if err := g.store.AttachReceipt(ctx, entry.ID, name); err != nil {
		if errors.Is(err, ledger.ErrReceiptAlreadySet) {
			return nil
		}
		return fmt.Errorf("attach receipt: %w", err)
	}
	g.logger.Info("receipt generated", "transaction_id", entry.ID, "file", name)
	return nil
}

func (g *Generator) username(ctx context.Context, id int64) string {
	user, err := g.users.Get(ctx, id)
	if err != nil {
		return fmt.Sprintf("user-%d", id)
	}
	return user.Username
}
