package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dukapos/dukapos/internal/app"
	"github.com/dukapos/dukapos/internal/credit"
	"github.com/dukapos/dukapos/internal/finance"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger"
	"github.com/dukapos/dukapos/internal/payments"
	"github.com/dukapos/dukapos/internal/platform/cache"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/jobs"
)

// paymentQueue adapts the jobs client to the finance handler's retry port.
type paymentQueue struct {
	client *jobs.Client
}

func (q paymentQueue) EnqueuePostPayment(ctx context.Context, paymentID string, pc ledger.PaymentContext) error {
	_, err := q.client.EnqueuePostPayment(ctx, jobs.PostPaymentPayload{
		PaymentID: paymentID,
		Payment:   pc,
	})
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	runner := db.NewRunner(pool)

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, balance caching disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	ledgerRepo := ledger.NewRepository(runner)
	ledgerQueries := ledger.NewQueryService(ledgerRepo, redisClient, logger)
	postingService := ledger.NewPostingService(runner, ledgerRepo, ledgerQueries, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerQueries)

	inventoryRepo := inventory.NewRepository(runner)
	strategies := inventory.NewStrategyRegistry(
		inventory.NewFIFOStrategy(inventoryRepo),
		inventory.NewFEFOStrategy(inventoryRepo),
	)
	policies := inventory.NewPolicyRegistry(
		inventory.NewDefaultExpiryPolicy(logger),
		inventory.NewStrictExpiryPolicy(logger),
	)
	configService := inventory.NewConfigService(inventoryRepo, strategies, policies)
	inventoryService := inventory.NewService(runner, inventoryRepo, configService, postingService, logger)
	reconciliation := inventory.NewReconciliationService(inventoryRepo, ledgerQueries, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, configService, reconciliation)

	paymentsRepo := payments.NewRepository(runner)
	paymentsService := payments.NewService(runner, paymentsRepo, postingService, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService)

	creditRepo := credit.NewRepository(runner)
	creditService := credit.NewService(runner, creditRepo, logger)
	supplierCreditService := credit.NewSupplierService(runner, creditRepo, ledgerQueries, logger)
	creditHandler := credit.NewHandler(logger, creditService, supplierCreditService)

	financeService := finance.NewService(postingService, ledgerQueries, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	financeHandler := finance.NewHandler(logger, financeService, paymentQueue{client: jobsClient})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		InventoryHandler: inventoryHandler,
		LedgerHandler:    ledgerHandler,
		PaymentsHandler:  paymentsHandler,
		FinanceHandler:   financeHandler,
		CreditHandler:    creditHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
