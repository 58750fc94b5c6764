package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	roulette "github.com/set-night/roulette"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/handler"
	"github.com/set-night/roulette/internal/lease"
	"github.com/set-night/roulette/internal/middleware"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/repository"
	"github.com/set-night/roulette/internal/repository/memory"
	"github.com/set-night/roulette/internal/service"
	"github.com/set-night/roulette/internal/sfu"
	"github.com/set-night/roulette/internal/telegram"
)

// leaseStore is a Locker that can also drop abandoned leases.
type leaseStore interface {
	lease.Locker
	PurgeExpired(ctx context.Context) (int64, error)
}

// auditSink receives settlement and security notices.
type auditSink interface {
	service.AuditLog
	service.Settler
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store  repository.Store
		leases leaseStore
	)
	if cfg.UsesPostgres() {
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		migrationsFS, err := fs.Sub(roulette.MigrationsFS, "migrations")
		if err != nil {
			slog.Error("failed to load embedded migrations", "error", err)
			os.Exit(1)
		}
		if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		store = repository.NewPostgresStore(pool)
		leases = lease.NewPostgres(pool)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		mem := memory.NewStore()
		for i, g := range defaultCatalog {
			g.ID = int64(i + 1)
			mem.AddGift(g)
		}
		store = mem
		leases = lease.NewMemory()
	}

	// Operator log
	var (
		audit    auditSink = service.NopAudit{}
		reporter handler.ErrorReporter
	)
	if cfg.TelegramLogEnabled() {
		b, err := bot.New(cfg.BotToken)
		if err != nil {
			slog.Error("failed to create telegram client", "error", err)
			os.Exit(1)
		}
		opsLog := telegram.NewOpsLog(b, cfg, logger)
		go opsLog.Run(ctx)
		audit = opsLog
		reporter = opsLog
		slog.Info("telegram ops log enabled", "chat_id", cfg.LogTelegramChatID)
	}

	// Notifications and media grants
	hub := notify.NewHub(logger)
	redirects := notify.NewRedirects(cfg.RedirectTTL)
	publisher := notify.NewFanout(hub, redirects, logger)
	grants := sfu.NewGrants(cfg.JoinTokenSecret, cfg.JoinTokenTTL)

	// Initialize services
	ledger := service.NewLedger(store, logger)
	exclusions := service.NewExclusionBook(store, cfg.ExclusionWindow)
	lifecycle := service.NewLifecycle(store, ledger, exclusions, publisher, grants, audit, cfg, logger)
	matchmaker := service.NewMatchmaker(store, exclusions, lifecycle, publisher, cfg, logger)
	catalog := service.NewCatalogCache(store, cfg.CatalogCacheTTL)
	commission := service.NewSettingsCommission(store, cfg.CommissionRate, logger)
	gifts := service.NewGiftService(store, ledger, lifecycle, catalog, commission, leases, publisher, audit, cfg, logger)
	app := service.NewRoulette(matchmaker, lifecycle, ledger, gifts, commission, grants, audit, logger)

	limiter := middleware.NewWindowCounter(config.RateLimitWindow)

	// Background workers
	sweeper := service.NewSweeper(cfg.SweepInterval, logger).
		Add("waiting_sessions", counted(matchmaker.SweepWaiting)).
		Add("gift_requests", counted(gifts.SweepExpired)).
		Add("exclusions", exclusions.Sweep).
		Add("redirects", counted(func(ctx context.Context) (int, error) { return redirects.Sweep(ctx), nil })).
		Add("join_grants", counted(func(ctx context.Context) (int, error) { return grants.Forget(ctx), nil })).
		Add("rate_limit", counted(func(context.Context) (int, error) { return limiter.Sweep(), nil })).
		Add("leases", leases.PurgeExpired)
	go sweeper.Run(ctx)

	biller := service.NewBiller(store, lifecycle, cfg.BillingInterval, config.BillingBatchSize, logger)
	go biller.Run(ctx)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recover(logger), middleware.Logging(logger))

	h := handler.New(handler.Deps{
		Cfg:       cfg,
		Roulette:  app,
		Hub:       hub,
		Redirects: redirects,
		Limiter:   limiter,
		Reporter:  reporter,
		Logger:    logger,
	})
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		// Request contexts end with ctx so open event streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("starting server", "addr", srv.Addr, "postgres", cfg.UsesPostgres())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	slog.Info("server stopped gracefully")
}

// defaultCatalog seeds the in-memory store with the same gifts the migrations
// insert.
var defaultCatalog = []domain.GiftCatalogItem{
	{Name: "Rose", Price: 10, IsActive: true},
	{Name: "Heart", Price: 25, IsActive: true},
	{Name: "Teddy Bear", Price: 50, IsActive: true},
	{Name: "Diamond", Price: 200, IsActive: true},
}

func counted(fn func(ctx context.Context) (int, error)) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		n, err := fn(ctx)
		return int64(n), err
	}
}
