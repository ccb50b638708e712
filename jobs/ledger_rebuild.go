package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stock-ledger/internal/jobs"
	"github.com/odyssey-erp/stock-ledger/internal/ledger"
	"github.com/odyssey-erp/stock-ledger/internal/shared"
)

// LedgerRebuilder regenerates ledger streams.
type LedgerRebuilder interface {
	Rebuild(ctx context.Context, companyID int64) (ledger.RebuildReport, error)
	RebuildItem(ctx context.Context, companyID, itemID int64) (ledger.RebuildReport, error)
}

// LeaseAcquirer hands out the per-company rebuild lease.
type LeaseAcquirer interface {
	Acquire(ctx context.Context, key string) (*shared.Lease, error)
}

// LedgerRebuildJob runs rebuild tasks, one company at a time across workers.
type LedgerRebuildJob struct {
	Rebuilder LedgerRebuilder
	Leases    LeaseAcquirer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerRebuildJob constructs the job handler.
func NewLedgerRebuildJob(rebuilder LedgerRebuilder, leases LeaseAcquirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRebuildJob {
	return &LedgerRebuildJob{Rebuilder: rebuilder, Leases: leases, Logger: logger, Metrics: metrics}
}

// Handle executes a rebuild task. A lease held by another worker fails the task so
// asynq retries it later.
func (j *LedgerRebuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Rebuilder == nil || j.Leases == nil {
		return errors.New("ledger rebuild: dependencies not configured")
	}
	var payload LedgerRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Error("decode ledger rebuild payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if payload.CompanyID <= 0 {
		j.log().Error("ledger rebuild without company", slog.String("run_id", payload.RunID))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerRebuild)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	lease, err := j.Leases.Acquire(ctx, shared.LedgerRebuildLeaseKey(payload.CompanyID))
	if err != nil {
		resultErr = err
		j.log().Warn("ledger rebuild lease", slog.Int64("company_id", payload.CompanyID), slog.Any("error", err))
		return resultErr
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			j.log().Warn("ledger rebuild lease release", slog.String("key", lease.Key()), slog.Any("error", err))
		}
	}()

	if id, err := uuid.Parse(payload.RunID); err == nil {
		ctx = ledger.ContextWithRunID(ctx, id)
	}
	var report ledger.RebuildReport
	if payload.ItemID > 0 {
		report, err = j.Rebuilder.RebuildItem(ctx, payload.CompanyID, payload.ItemID)
	} else {
		report, err = j.Rebuilder.Rebuild(ctx, payload.CompanyID)
	}
	if err != nil {
		resultErr = err
		j.log().Error("ledger rebuild",
			slog.Int64("company_id", payload.CompanyID),
			slog.Int64("item_id", payload.ItemID),
			slog.String("run_id", payload.RunID),
			slog.Any("error", err),
		)
		if errors.Is(err, ledger.ErrValidation) || errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return resultErr
	}
	j.Metrics.AddRebuiltEntries(report.CompanyID, report.Entries)
	return resultErr
}

func (j *LedgerRebuildJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
