package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stock-ledger/internal/app"
	"github.com/odyssey-erp/stock-ledger/internal/ledger"
	"github.com/odyssey-erp/stock-ledger/internal/platform/cache"
	"github.com/odyssey-erp/stock-ledger/internal/platform/db"
	"github.com/odyssey-erp/stock-ledger/internal/shared"
	"github.com/odyssey-erp/stock-ledger/jobs"
)

func main() {
	companyID := flag.Int64("company", 0, "company whose ledger is rebuilt")
	itemID := flag.Int64("item", 0, "rebuild a single item instead of the whole company")
	enqueue := flag.Bool("enqueue", false, "hand the rebuild to the worker instead of running it here")
	verify := flag.Bool("verify", false, "only verify running balances and stock mirrors")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping rebuild")
		return
	}
	if *companyID <= 0 {
		fmt.Fprintln(os.Stderr, "rebuild: -company is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if *enqueue {
		client := jobs.NewClient(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}.AsynqOpt())
		defer client.Close()
		var info *asynq.TaskInfo
		if *verify {
			info, err = client.EnqueueLedgerVerify(ctx, *companyID)
		} else {
			info, err = client.EnqueueLedgerRebuild(ctx, *companyID, *itemID)
		}
		if err != nil {
			logger.Error("enqueue", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("task enqueued", slog.String("id", info.ID), slog.String("type", info.Type))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, ApplicationName: "stock-ledger-rebuild"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	repo := ledger.NewRepository(pool, ledger.RepositoryConfig{LockTimeout: cfg.LedgerLockTimeout})

	if *verify {
		report, err := ledger.NewVerifier(repo, logger).Verify(ctx, *companyID)
		if err != nil {
			logger.Error("verify", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("company %d: %d items, %d entries, %d chain breaks, %d mirror mismatches\n",
			report.CompanyID, report.Items, report.Entries, len(report.Breaks), len(report.Mismatches))
		if !report.OK() {
			os.Exit(3)
		}
		return
	}

	rebuilder := ledger.NewRebuilder(repo, shared.NewAuditLogger(pool), nil, ledger.ServiceConfig{Logger: logger})
	var report ledger.RebuildReport
	if *itemID > 0 {
		report, err = rebuilder.RebuildItem(ctx, *companyID, *itemID)
	} else {
		report, err = rebuilder.Rebuild(ctx, *companyID)
	}
	if err != nil {
		logger.Error("rebuild", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("run %s: company %d, %d items, %d entries in %s\n",
		report.RunID, report.CompanyID, report.Items, report.Entries, report.Duration)
}
