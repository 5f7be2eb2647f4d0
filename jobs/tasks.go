// Package jobs contains the Asynq background workers that sweep every tenant
// schema: idempotency key retention and the nightly ledger drift scan.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes expired idempotency keys in all tenants.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskStockDriftScan recomputes ledger quantities from the move journal.
	TaskStockDriftScan = "stock:drift_scan"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// StockDriftScanPayload carries scheduling metadata.
type StockDriftScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockDriftScanTask constructs an Asynq task for the drift scan.
func NewStockDriftScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockDriftScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockDriftScan, body, asynq.Queue(QueueDefault)), nil
}
