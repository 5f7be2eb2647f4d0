package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DefaultIdempotencyRetention keeps posting guards long enough to survive any
// reasonable client retry window.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// SchemaLister enumerates tenant schemas for jobs that sweep every tenant.
type SchemaLister interface {
	Schemas(ctx context.Context) ([]string, error)
}

// IdempotencyCleanupJob prunes expired idempotency keys per tenant schema.
type IdempotencyCleanupJob struct {
	tenants SchemaLister
	store   *shared.IdempotencyStore
	logger  *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(tenants SchemaLister, store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{tenants: tenants, store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks. A failure in one tenant does
// not stop the sweep; the task is retried only when every tenant failed to be
// listed at all.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}

	schemas, err := j.tenants.Schemas(ctx)
	if err != nil {
		return err
	}
	for _, schema := range schemas {
		if err := j.store.Cleanup(ctx, schema, retention); err != nil {
			j.logger.Warn("idempotency cleanup",
				slog.String("schema", schema), slog.Any("error", err))
			continue
		}
	}
	j.logger.Info("idempotency cleanup executed",
		slog.Int("tenants", len(schemas)),
		slog.Duration("retention", retention))
	return nil
}
