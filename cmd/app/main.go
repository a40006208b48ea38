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
	"time"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain/ports/adapter"
	pg "restaurant-payment-engine/internal/infra/db/postgres"
	"restaurant-payment-engine/internal/infra/gateway"
	"restaurant-payment-engine/internal/infra/logging"
	"restaurant-payment-engine/internal/infra/metrics"
	"restaurant-payment-engine/internal/infra/notify"
	red "restaurant-payment-engine/internal/infra/redis"
	"restaurant-payment-engine/internal/infra/sched"
	"restaurant-payment-engine/internal/infra/web"
	"restaurant-payment-engine/internal/infra/worker"
	"restaurant-payment-engine/internal/usecase"
)

// Populated at build time via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateway, relaxed secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, *devMode)
	if *devMode {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locks := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	orderRepo := pg.NewPaymentOrderRepo(pool)
	txnRepo := pg.NewTransactionRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	splitRepo := pg.NewSplitShareRepo(pool)
	mappingRepo := pg.NewMappingRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	attemptRepo := pg.NewRetryAttemptRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Gateway adapter ----
	var gw adapter.GatewayClient
	if *devMode && cfg.Gateway.KeySecret == "" {
		gw = gateway.NewNoopGateway()
		logger.Warn().Msg("gateway adapter: noop (dev)")
	} else {
		gw = gateway.NewRestPayGateway(&cfg.Gateway)
		logger.Info().Str("gateway", gw.Name()).Bool("sandbox", cfg.Gateway.Sandbox).Msg("gateway adapter ready")
	}

	// ---- Ordering system notifier ----
	var notifier adapter.OrderNotifier
	if cfg.Payment.NotifyURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.Payment.NotifyURL, cfg.Gateway.Timeout, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// ---- Use cases ----
	orderUC := usecase.NewOrderUseCase(orderRepo, txnRepo, refundRepo, splitRepo, mappingRepo, auditRepo, gw, tm, cfg, logger)
	webhookUC := usecase.NewWebhookUseCase(eventRepo, txnRepo, orderRepo, auditRepo, tm, locks, notifier, cfg.Gateway.WebhookSecret, cfg.Redis.LockTTL, logger)
	retryUC := usecase.NewRetryUseCase(orderRepo, txnRepo, attemptRepo, auditRepo, gw, notifier, tm, locks, cfg, logger)
	refundUC := usecase.NewRefundUseCase(refundRepo, txnRepo, orderRepo, auditRepo, gw, notifier, tm, locks, cfg, logger)
	splitUC := usecase.NewSplitUseCase(splitRepo, txnRepo, auditRepo, tm, logger)
	reconcileUC := usecase.NewReconcileUseCase(mappingRepo, orderRepo, txnRepo, eventRepo, gw, webhookUC, cfg, logger)

	// ---- Background workers ----
	pool2 := worker.NewPool(cfg.Worker.RetryWorkers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	go sched.NewRetryWorker(retryUC, pool2, cfg.Worker.RetryInterval, cfg.Reconcile.BatchSize, logger).Start(ctx)
	go sched.NewExpiryWorker(orderUC, cfg.Worker.ExpiryInterval, cfg.Reconcile.BatchSize, logger).Start(ctx)
	go sched.NewReconcileWorker(reconcileUC, cfg.Reconcile.Interval, logger).Start(ctx)

	// ---- HTTP server ----
	srv := web.NewServer(orderUC, webhookUC, refundUC, splitUC, reconcileUC, auditRepo, limiter, &cfg.Admin, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	cancel()
}
