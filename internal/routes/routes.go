package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/minte-pay/minte/internal/auth"
	"github.com/minte-pay/minte/internal/config"
	"github.com/minte-pay/minte/internal/identity"
	"github.com/minte-pay/minte/internal/ledger"
	"github.com/minte-pay/minte/internal/middleware"
	"github.com/minte-pay/minte/internal/notification"
	"github.com/minte-pay/minte/internal/receipts"
	"github.com/minte-pay/minte/internal/transfer"
	"github.com/minte-pay/minte/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. The returned
// cleanup function stops background workers and must run during shutdown.
func Setup(app *fiber.App, d Deps) (func(), error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	var identityRepo identity.Repository
	if d.DB != nil {
		store = ledger.NewPostgres(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg)
	notifier := notification.NewLoggerNotifier(d.Logger)

	generator := receipts.NewGenerator(store, identitySvc, d.Cfg.ReceiptsDir, d.Logger)
	generator.Start(d.Cfg.ReceiptWorkers)

	transferSvc := transfer.NewService(store, identitySvc, generator, notifier)
	walletSvc := wallet.NewService(store, identitySvc)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	walletHandler := wallet.NewHandler(walletSvc)

	api := app.Group("/api")
	RegisterAuthRoutes(api, identityHandler, authHandler, middleware.LoginRateLimit(d.Cache, 5))

	jwtmw := middleware.JWTAuth(authSvc, identitySvc)
	protected := api.Group("/wallet", jwtmw)

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterWalletRoutes(protected, transferHandler, walletHandler, identityHandler, idem)

	return generator.Stop, nil
}
