package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
)

type fakeLister struct {
	schemas []string
	err     error
}

func (f *fakeLister) Schemas(context.Context) ([]string, error) {
	return f.schemas, f.err
}

type fakeScanner struct {
	drifts  map[string][]stock.Drift
	errs    map[string]error
	scanned []string
}

func (f *fakeScanner) ScanDrift(_ context.Context, schema string) ([]stock.Drift, error) {
	f.scanned = append(f.scanned, schema)
	return f.drifts[schema], f.errs[schema]
}

func driftTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewStockDriftScanTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestDriftScanSweepsAllTenants(t *testing.T) {
	scanner := &fakeScanner{drifts: map[string][]stock.Drift{
		"t_acme": {{LocationID: "WH0100001", ProductID: 7, Ledger: 5, Journal: 8}},
	}}
	job := NewStockDriftScanJob(
		&fakeLister{schemas: []string{"t_acme", "t_globex"}},
		scanner,
		slog.New(slog.DiscardHandler),
	)

	require.NoError(t, job.Handle(context.Background(), driftTask(t)))
	require.Equal(t, []string{"t_acme", "t_globex"}, scanner.scanned)
}

func TestDriftScanContinuesPastTenantFailure(t *testing.T) {
	scanner := &fakeScanner{errs: map[string]error{"t_acme": errors.New("boom")}}
	job := NewStockDriftScanJob(
		&fakeLister{schemas: []string{"t_acme", "t_globex"}},
		scanner,
		slog.New(slog.DiscardHandler),
	)

	require.NoError(t, job.Handle(context.Background(), driftTask(t)))
	require.Equal(t, []string{"t_acme", "t_globex"}, scanner.scanned)
}

func TestDriftScanRetriesWhenListingFails(t *testing.T) {
	job := NewStockDriftScanJob(
		&fakeLister{err: errors.New("db down")},
		&fakeScanner{},
		slog.New(slog.DiscardHandler),
	)

	require.Error(t, job.Handle(context.Background(), driftTask(t)))
}

func TestDriftScanSkipsMalformedPayload(t *testing.T) {
	job := NewStockDriftScanJob(&fakeLister{}, &fakeScanner{}, slog.New(slog.DiscardHandler))

	err := job.Handle(context.Background(), asynq.NewTask(TaskStockDriftScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
