package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/availability"
	"github.com/iliyamo/vehicle-rental-bot/internal/booking"
	"github.com/iliyamo/vehicle-rental-bot/internal/config"
	"github.com/iliyamo/vehicle-rental-bot/internal/conversation"
	"github.com/iliyamo/vehicle-rental-bot/internal/database"
	"github.com/iliyamo/vehicle-rental-bot/internal/handler"
	"github.com/iliyamo/vehicle-rental-bot/internal/lifecycle"
	"github.com/iliyamo/vehicle-rental-bot/internal/logger"
	"github.com/iliyamo/vehicle-rental-bot/internal/middleware"
	"github.com/iliyamo/vehicle-rental-bot/internal/payment"
	"github.com/iliyamo/vehicle-rental-bot/internal/pricing"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
	"github.com/iliyamo/vehicle-rental-bot/internal/router"
	"github.com/iliyamo/vehicle-rental-bot/internal/scheduler"
	"github.com/iliyamo/vehicle-rental-bot/internal/session"
)

func main() {
	cfg := config.Load() // Load environment config

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pricingCfg, err := config.LoadPricing()
	if err != nil {
		lg.Fatal("pricing config", zap.Error(err))
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	defer db.Close()
	if os.Getenv("DB_MIGRATE") == "true" {
		if err := database.Migrate(ctx, db); err != nil {
			lg.Fatal("migrate", zap.Error(err))
		}
	}
	store := repository.NewStore(db)

	// Redis is optional; without it sessions and locks stay in process and
	// rate limiting and caching are disabled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable, running single-instance")
	} else {
		defer rdb.Close()
	}

	var (
		sessions session.Store
		locker   session.Locker
		sweeper  scheduler.Sweeper
	)
	if cfg.SessionBackend == "redis" && rdb != nil {
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
		locker = session.NewRedisLocker(rdb, 30*time.Second, 10*time.Second)
	} else {
		if cfg.SessionBackend == "redis" {
			lg.Warn("SESSION_BACKEND=redis but redis is unavailable, using memory")
		}
		mem := session.NewMemoryStore(cfg.SessionTTL)
		sessions, sweeper = mem, mem
		locker = session.NewKeyedMutex()
	}

	publisher := queue.NewPublisher(cfg.RabbitURL, lg.Named("queue"))
	audit := queue.NewAuditConsumer(cfg.RabbitURL, os.Getenv("AUDIT_LOG_PATH"), lg.Named("audit"))
	go func() {
		if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("audit consumer stopped", zap.Error(err))
		}
	}()

	engine := pricing.NewEngine(pricingCfg, store, lg.Named("pricing"))
	checker := availability.NewChecker(store, engine)
	manager := booking.NewManager(store, engine, publisher, lg.Named("booking"))
	life := lifecycle.NewService(store, publisher, lg.Named("lifecycle"))

	var gateway payment.Gateway = payment.OfflineGateway{}
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		lg.Warn("STRIPE_SECRET_KEY not set, payments are settled by staff")
	}
	payments := payment.NewService(gateway, store, life, cfg.Currency, lg.Named("payment"))

	conv := conversation.NewController(conversation.Deps{
		Sessions:  sessions,
		Locker:    locker,
		Store:     store,
		Finder:    checker,
		Booker:    manager,
		Lifecycle: life,
		Payments:  payments,
		Notifier:  publisher,
		Currency:  cfg.Currency,
		Log:       lg.Named("conversation"),
	})

	jobs := scheduler.NewJobs(store, life, publisher, sweeper, cfg.PendingHoldTTL, cfg.ReminderLead, lg.Named("jobs"))
	sched, err := scheduler.Start(ctx, jobs, scheduler.DefaultIntervals, lg.Named("scheduler"))
	if err != nil {
		lg.Fatal("scheduler", zap.Error(err))
	}

	ready := map[string]handler.Pinger{"db": db}
	if rdb != nil {
		ready["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = middleware.NewValidator()
	e.Use(middleware.RequestLogger(lg.Named("http")))

	router.Register(e, router.Handlers{
		Auth:    handler.NewAuthHandler(cfg, store, store),
		Channel: handler.NewChannelHandler(conv, lg.Named("channel")),
		Webhook: handler.NewPaymentWebhook(payments, cfg.StripeWebhookSecret, lg.Named("webhook")),
		Catalog: handler.NewCatalogHandler(store),
		Staff:   handler.NewStaffHandler(store, life, payments, lg.Named("staff")),
		Ready:   handler.Ready(ready),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Log:       lg.Named("middleware"),
	})

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	if err := sched.Stop(); err != nil {
		lg.Error("scheduler shutdown", zap.Error(err))
	}
}
