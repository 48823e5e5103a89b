package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/loyalty/internal/account"
	"github.com/congo-pay/loyalty/internal/commission"
	"github.com/congo-pay/loyalty/internal/config"
	"github.com/congo-pay/loyalty/internal/events"
	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/middleware"
	"github.com/congo-pay/loyalty/internal/payout"
	"github.com/congo-pay/loyalty/internal/points"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Handlers groups the HTTP handlers registered under /api/v1.
type Handlers struct {
	Accounts    *account.Handler
	Points      *points.Handler
	Commissions *commission.Handler
	Payouts     *payout.Handler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	h, err := buildHandlers(d)
	if err != nil {
		return err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() && strings.EqualFold(d.Cfg.LogFormat, "text") {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.Principal([]byte(d.Cfg.JWTSecret)))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	redeemLimit := middleware.RateLimit(d.Cache, "redeem", d.Cfg.RedeemRateLimit, d.Logger)
	Register(protected, h, redeemLimit)
	return nil
}

func buildHandlers(d Deps) (Handlers, error) {
	var (
		store      ledger.Store
		payoutRepo payout.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		payoutRepo = payout.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory stores")
		store = ledger.NewInMemory()
		payoutRepo = payout.NewMemoryRepository()
	}

	publisher := events.NewLoggerPublisher(d.Logger)
	engine := ledger.NewEngine(store, ledger.Options{
		MaxAttempts:  d.Cfg.LedgerMaxAttempts,
		RetryInitial: d.Cfg.LedgerRetryInitial,
		Logger:       d.Logger,
		Publisher:    publisher,
	})

	pointSvc, err := points.NewService(engine, d.Cfg.ConversionRate, d.Logger)
	if err != nil {
		return Handlers{}, err
	}
	payoutSvc := payout.NewService(payoutRepo, engine, payout.Options{
		MinimumPayout: d.Cfg.MinimumPayout,
		Publisher:     publisher,
		Logger:        d.Logger,
	})

	return Handlers{
		Accounts:    account.NewHandler(account.NewService(engine, payoutSvc)),
		Points:      points.NewHandler(pointSvc),
		Commissions: commission.NewHandler(commission.NewService(engine, d.Logger)),
		Payouts:     payout.NewHandler(payoutSvc),
	}, nil
}
