package jobs

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRebuild regenerates the ledger of a company or of one item.
	TaskLedgerRebuild = "ledger:rebuild"
	// TaskLedgerVerify checks running balances and stock mirrors.
	TaskLedgerVerify = "ledger:verify"
)

// LedgerRebuildPayload scopes a rebuild. ItemID zero rebuilds the whole company.
type LedgerRebuildPayload struct {
	CompanyID int64  `json:"company_id"`
	ItemID    int64  `json:"item_id,omitempty"`
	RunID     string `json:"run_id"`
}

// LedgerVerifyPayload scopes a verification. CompanyID zero verifies every company.
type LedgerVerifyPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewLedgerRebuildTask constructs an Asynq task for a ledger rebuild with a fresh run id.
func NewLedgerRebuildTask(companyID, itemID int64) (*asynq.Task, error) {
	if companyID <= 0 {
		return nil, errors.New("ledger rebuild: company id required")
	}
	payload := LedgerRebuildPayload{CompanyID: companyID, ItemID: itemID, RunID: uuid.NewString()}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRebuild, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID("ledger-rebuild:"+payload.RunID),
	), nil
}

// NewLedgerVerifyTask constructs an Asynq task for a ledger verification.
func NewLedgerVerifyTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerVerifyPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, body, asynq.Queue(QueueDefault)), nil
}
