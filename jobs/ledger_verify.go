package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stock-ledger/internal/jobs"
	"github.com/odyssey-erp/stock-ledger/internal/ledger"
)

// LedgerVerifier checks one company.
type LedgerVerifier interface {
	Verify(ctx context.Context, companyID int64) (ledger.VerifyReport, error)
}

// CompanyLister enumerates companies owning items.
type CompanyLister interface {
	ListCompanyIDs(ctx context.Context) ([]int64, error)
}

// LedgerVerifyJob runs verification tasks.
type LedgerVerifyJob struct {
	Verifier  LedgerVerifier
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerVerifyJob constructs the job handler.
func NewLedgerVerifyJob(verifier LedgerVerifier, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Verifier: verifier, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle verifies the requested companies. Inconsistencies are reported through logs
// and metrics; only read failures fail the task.
func (j *LedgerVerifyJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Verifier == nil || j.Companies == nil {
		return errors.New("ledger verify: dependencies not configured")
	}
	var payload LedgerVerifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Error("decode ledger verify payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerVerify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies := []int64{payload.CompanyID}
	if payload.CompanyID <= 0 {
		ids, err := j.Companies.ListCompanyIDs(ctx)
		if err != nil {
			resultErr = err
			j.log().Error("list companies", slog.Any("error", err))
			return resultErr
		}
		companies = ids
	}

	var errs []error
	inconsistent := 0
	for _, companyID := range companies {
		report, err := j.Verifier.Verify(ctx, companyID)
		if err != nil {
			errs = append(errs, fmt.Errorf("company %d: %w", companyID, err))
			continue
		}
		j.Metrics.ObserveVerification(companyID, len(report.Breaks), len(report.Mismatches))
		if !report.OK() {
			inconsistent++
		}
	}
	j.log().Info("ledger verification finished",
		slog.Int("companies", len(companies)),
		slog.Int("inconsistent", inconsistent),
		slog.Int("failed", len(errs)),
	)
	resultErr = errors.Join(errs...)
	return resultErr
}

func (j *LedgerVerifyJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
