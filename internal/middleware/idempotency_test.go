package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/minte-pay/minte/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int64, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	var hits int64
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/transfer", func(c *fiber.Ctx) error {
		n := atomic.AddInt64(&hits, 1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"transaction_id": n})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &hits, cleanup
}

func postTransfer(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(body)
}

func TestIdempotencyMissingHeaderPassesThrough(t *testing.T) {
	app, hits, cleanup := setupTestApp(t)
	defer cleanup()

	status1, _ := postTransfer(t, app, "")
	status2, _ := postTransfer(t, app, "")
	if status1 != fiber.StatusOK || status2 != fiber.StatusOK {
		t.Fatalf("statuses = %d, %d, want 200, 200", status1, status2)
	}
	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("handler invoked %d times, want 2", got)
	}
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	app, hits, cleanup := setupTestApp(t)
	defer cleanup()

	status1, body1 := postTransfer(t, app, "abc123")
	if status1 != fiber.StatusOK {
		t.Fatalf("first status = %d, want 200", status1)
	}

	status2, body2 := postTransfer(t, app, "abc123")
	if status2 != fiber.StatusOK {
		t.Fatalf("replayed status = %d, want 200", status2)
	}
	if body1 != body2 {
		t.Fatalf("replayed body %q differs from original %q", body2, body1)
	}
	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
}

func TestIdempotencyConcurrentDuplicateRunsHandlerOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	var hits int64
	release := make(chan struct{})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/transfer", func(c *fiber.Ctx) error {
		atomic.AddInt64(&hits, 1)
		<-release
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	firstStatus := make(chan int)
	go func() {
		req := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader("{}"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(idempotencyKeyHeader, "dup-key")
		resp, err := app.Test(req, -1)
		if err != nil {
			firstStatus <- 0
			return
		}
		resp.Body.Close()
		firstStatus <- resp.StatusCode
	}()

	// Wait for the first request to hold the reservation inside the handler.
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&hits) == 0 {
		select {
		case <-deadline:
			t.Fatal("first request never reached the handler")
		case <-time.After(5 * time.Millisecond):
		}
	}

	req2 := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader("{}"))
	req2.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req2.Header.Set(idempotencyKeyHeader, "dup-key")
	resp2, err := app.Test(req2)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != fiber.StatusConflict {
		t.Fatalf("in-flight duplicate status = %d, want %d", resp2.StatusCode, fiber.StatusConflict)
	}

	close(release)
	if status := <-firstStatus; status != fiber.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
}

func TestIdempotencyLostReservationConflicts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	var hits int64
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/transfer", func(c *fiber.Ctx) error {
		atomic.AddInt64(&hits, 1)
		return c.SendStatus(fiber.StatusOK)
	})

	// A competing request already reserved the key.
	if err := mr.Set(idempotencyPrefix+"raced-key", inProgressMarker); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "raced-key")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusConflict)
	}
	if got := atomic.LoadInt64(&hits); got != 0 {
		t.Fatalf("handler invoked %d times, want 0", got)
	}
}

// racedCache simulates the duplicate that lands between the middleware's Get
// and SetNX: the lookup misses but the reservation is already taken.
type racedCache struct {
	redis.Cmdable
}

func (racedCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (racedCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(false)
	return cmd
}

func TestIdempotencyLostSetNXRaceConflicts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	var hits int64
	app.Use(Idempotency(racedCache{Cmdable: cache}, time.Minute, logging.Discard()))
	app.Post("/transfer", func(c *fiber.Ctx) error {
		atomic.AddInt64(&hits, 1)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "raced-window")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusConflict)
	}
	if got := atomic.LoadInt64(&hits); got != 0 {
		t.Fatalf("handler invoked %d times after losing the reservation, want 0", got)
	}
}

func TestIdempotencyDistinctKeysAreIndependent(t *testing.T) {
	app, hits, cleanup := setupTestApp(t)
	defer cleanup()

	_, body1 := postTransfer(t, app, "key-one")
	_, body2 := postTransfer(t, app, "key-two")
	if body1 == body2 {
		t.Fatalf("responses for distinct keys should differ, both %q", body1)
	}
	if got := atomic.LoadInt64(hits); got != 2 {
		t.Fatalf("handler invoked %d times, want 2", got)
	}
}
