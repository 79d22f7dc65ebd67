package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dukapos/dukapos/internal/app"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger"
	"github.com/dukapos/dukapos/internal/platform/cache"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	handlers := jobs.NewHandlers(postingService, inventoryService, logger)

	var cron []jobs.CronRegistration
	if cfg.ExpiryScanCron != "" && len(cfg.ExpiryScanChannels) > 0 {
		scanTask, err := jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{ChannelIDs: cfg.ExpiryScanChannels})
		if err != nil {
			logger.Error("build expiry scan task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.ExpiryScanCron,
			Task:    scanTask,
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
