package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stock-ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/stock-ledger/internal/jobs"
	"github.com/odyssey-erp/stock-ledger/internal/ledger"
	"github.com/odyssey-erp/stock-ledger/internal/observability"
	"github.com/odyssey-erp/stock-ledger/internal/platform/cache"
	"github.com/odyssey-erp/stock-ledger/internal/platform/db"
	"github.com/odyssey-erp/stock-ledger/internal/platform/events"
	"github.com/odyssey-erp/stock-ledger/internal/shared"
	"github.com/odyssey-erp/stock-ledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, ApplicationName: "stock-ledger-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOptions := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOptions)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var notifier ledger.Notifier
	if cfg.EventsEnabled() {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.LedgerEventsTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		notifier = publisher
	} else {
		logger.Info("stock change events disabled")
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	repo := ledger.NewRepository(pool, ledger.RepositoryConfig{LockTimeout: cfg.LedgerLockTimeout})
	audit := shared.NewAuditLogger(pool)
	rebuilder := ledger.NewRebuilder(repo, audit, notifier, ledger.ServiceConfig{Logger: logger})
	verifier := ledger.NewVerifier(repo, logger)
	leaser := shared.NewLeaser(redisClient, cfg.LedgerRebuildLease)

	rebuildJob := jobs.NewLedgerRebuildJob(rebuilder, leaser, logger, jobMetrics)
	verifyJob := jobs.NewLedgerVerifyJob(verifier, repo, logger, jobMetrics)

	redisOpts := redisOptions.AsynqOpt()
	var cron []jobs.CronRegistration
	if cfg.LedgerVerifyCron != "" {
		verifyTask, err := jobs.NewLedgerVerifyTask(0)
		if err != nil {
			logger.Error("build verify task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LedgerVerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRebuild, Handler: rebuildJob.Handle},
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	ops := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           observability.NewOpsRouter(metrics, jobs.NewHandler(inspector, logger).MountRoutes),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops listener started", slog.String("addr", cfg.OpsAddr))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops listener", slog.Any("error", err))
			stop()
		}
	}()

	runErr := worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops shutdown", slog.Any("error", err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("worker run", slog.Any("error", runErr))
		os.Exit(1)
	}
}
