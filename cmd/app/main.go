package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"calendar-ai-billing/internal/config"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/infra/adapters/notify"
	payAdapters "calendar-ai-billing/internal/infra/adapters/payment"
	pg "calendar-ai-billing/internal/infra/db/postgres"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
	red "calendar-ai-billing/internal/infra/redis"
	"calendar-ai-billing/internal/infra/sched"
	"calendar-ai-billing/internal/infra/web"
	"calendar-ai-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop gateway allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)
	ledgerRepo := pg.NewEventLedgerRepo(pool)
	creditRepo := pg.NewCreditPackRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Billing gateway ----
	var gateway adapter.BillingGateway
	switch cfg.Billing.Provider {
	case "noop":
		gateway = payAdapters.NewNoopBillingGateway()
	default:
		gateway, err = payAdapters.NewStripeGateway(&cfg.Billing)
		if err != nil {
			log.Fatalf("billing gateway: %v", err)
		}
	}
	logger.Info().Str("provider", gateway.Name()).Msg("billing gateway ready")

	// ---- Use cases ----
	notifier := notify.NewLogDunningNotifier(logger)
	catalogUC := usecase.NewCatalogUseCase(planRepo)
	entitlementUC := usecase.NewEntitlementUseCase(
		subRepo, planRepo, creditRepo,
		cfg.Entitlement.FreePlanSlug, cfg.Entitlement.GraceFeatures, cfg.Refund.Window,
		logger,
	)
	reconcileUC := usecase.NewReconcileUseCase(subRepo, planRepo, creditRepo, notifier, logger)
	sessionUC := usecase.NewSessionUseCase(planRepo, subRepo, gateway, logger)
	refundUC := usecase.NewRefundUseCase(subRepo, refundRepo, txm, gateway, cfg.Refund.Window, logger)
	verifier := payAdapters.NewSignatureVerifier(cfg.Billing.WebhookSecret)
	webhookUC := usecase.NewWebhookUseCase(verifier, ledgerRepo, reconcileUC, refundUC, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.HTTP.ServiceJWTKey)
	srv := web.NewServer(webhookUC, sessionUC, entitlementUC, refundUC, catalogUC, auth, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Background workers ----
	sweeper := sched.NewLedgerSweeper(ledgerRepo, cfg.Sweeper.Interval, cfg.Sweeper.ClaimTimeout, logger)
	go func() { _ = sweeper.Run(ctx) }()
	stats := sched.NewStatsWorker(subRepo, cfg.Sweeper.Interval, logger)
	go func() { _ = stats.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
