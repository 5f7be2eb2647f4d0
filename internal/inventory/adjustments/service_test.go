package adjustments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	docs     map[int64]*Adjustment
	items    map[int64]*Item
	nextDoc  int64
	nextItem int64
	seqs     map[string]int64
	posted   map[int64]bool
	ledger   *stock.InMemoryLedger
	journal  *stock.InMemoryJournal
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:    make(map[int64]*Adjustment),
		items:   make(map[int64]*Item),
		seqs:    make(map[string]int64),
		posted:  make(map[int64]bool),
		ledger:  stock.NewInMemoryLedger(),
		journal: stock.NewInMemoryJournal(),
	}
}

type memTx struct {
	repo *memRepo
}

func (r *memRepo) WithTx(ctx context.Context, _ string, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memTx{repo: r})
}

func (r *memRepo) GetByID(ctx context.Context, _ string, id int64) (Adjustment, error) {
	return (&memTx{repo: r}).Get(ctx, id)
}

func (r *memRepo) List(_ context.Context, _ string, status *Status) ([]Adjustment, error) {
	var out []Adjustment
	for _, doc := range r.docs {
		if status == nil || doc.Status == *status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memTx) Get(_ context.Context, id int64) (Adjustment, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	out := *doc
	out.Items = nil
	for _, item := range t.repo.items {
		if item.AdjustmentID == id {
			out.Items = append(out.Items, *item)
		}
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, a Adjustment) (int64, error) {
	t.repo.nextDoc++
	a.ID = t.repo.nextDoc
	t.repo.docs[a.ID] = &a
	return a.ID, nil
}

func (t *memTx) MarkDone(_ context.Context, id int64, doneAt time.Time) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = StatusDone
	doc.CanEdit = false
	doc.DoneAt = &doneAt
	return nil
}

func (t *memTx) UpdateNote(_ context.Context, id int64, note string) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Note = note
	return nil
}

func (t *memTx) InsertItem(_ context.Context, item Item) (int64, error) {
	t.repo.nextItem++
	item.ID = t.repo.nextItem
	t.repo.items[item.ID] = &item
	return item.ID, nil
}

func (t *memTx) UpdateItem(_ context.Context, item Item) error {
	existing, ok := t.repo.items[item.ID]
	if !ok || existing.AdjustmentID != item.AdjustmentID {
		return ErrNotFound
	}
	*existing = item
	return nil
}

func (t *memTx) DeleteItemsNotIn(_ context.Context, adjustmentID int64, keep []int64) error {
	keepSet := make(map[int64]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	for id, item := range t.repo.items {
		if item.AdjustmentID == adjustmentID && !keepSet[id] {
			delete(t.repo.items, id)
		}
	}
	return nil
}

func (t *memTx) NextNumber(_ context.Context, prefix string) (int64, error) {
	t.repo.seqs[prefix]++
	return t.repo.seqs[prefix], nil
}

func (t *memTx) PostingGuard(_ context.Context, id int64) error {
	if t.repo.posted[id] {
		return shared.ErrIdempotencyConflict
	}
	t.repo.posted[id] = true
	return nil
}

func (t *memTx) Ledger() stock.Ledger       { return t.repo.ledger }
func (t *memTx) Journal() stock.MoveJournal { return t.repo.journal }

type fakeLocs struct{}

func (fakeLocs) Get(_ context.Context, id string) (locations.Location, error) {
	if id == "" {
		return locations.Location{}, locations.ErrNotFound
	}
	return locations.Location{ID: id, Code: "WH01", Type: locations.TypeInternal}, nil
}

var errHiddenProduct = errors.New("product is hidden")

type fakeProducts struct {
	hidden map[int64]bool
}

func (f fakeProducts) EnsureVisible(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if f.hidden[id] {
			return errHiddenProduct
		}
	}
	return nil
}

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), &shared.Tenant{Schema: "t_acme"})
}

func newTestService(repo *memRepo) *Service {
	return NewService(repo, fakeLocs{}, fakeProducts{}, nil)
}

func TestCreateValidations(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	_, err := svc.Create(ctx, CreateInput{WarehouseLocationID: "WH0100001"})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, AdjustedQuantity: -2}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateInput{Items: []ItemInput{{ProductID: 1, AdjustedQuantity: 5}}})
	require.ErrorIs(t, err, ErrLocationRequired)

	_, err = svc.Create(context.Background(), CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, AdjustedQuantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrTenantMissing)
}

func TestCreateRejectsHiddenProduct(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{hidden: map[int64]bool{7: true}}, nil)

	_, err := svc.Create(tenantCtx(), CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 7, AdjustedQuantity: 5}},
	})
	require.ErrorIs(t, err, errHiddenProduct)
}

func TestCreateAssignsNumber(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	a, err := svc.Create(tenantCtx(), CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, AdjustedQuantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, "WH01ADJ00001", a.Number)
	require.Equal(t, StatusDraft, a.Status)
	require.True(t, a.CanEdit)
}

func TestDoneOverwritesLedger(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 7)
	require.NoError(t, err)

	a, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items: []ItemInput{
			{ProductID: 1, AdjustedQuantity: 10},
			{ProductID: 2, AdjustedQuantity: 0},
		},
	})
	require.NoError(t, err)

	done := StatusDone
	a, err = svc.Update(ctx, a.ID, UpdateInput{Status: &done})
	require.NoError(t, err)
	require.Equal(t, StatusDone, a.Status)
	require.False(t, a.CanEdit)
	require.NotNil(t, a.DoneAt)

	// Set semantics: the ledger holds the declared count, not old + declared.
	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)

	qty, err = repo.ledger.Get(ctx, "WH0100001", 2)
	require.NoError(t, err)
	require.InDelta(t, 0, qty, 0.0001)

	// Only the non-zero delta is journaled.
	require.Len(t, repo.journal.Moves, 1)
	require.Equal(t, stock.MoveTypeAdjust, repo.journal.Moves[0].Type)
	require.InDelta(t, 3, repo.journal.Moves[0].Qty, 0.0001)
}

func TestDoneFiresExactlyOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	a, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, AdjustedQuantity: 10}},
	})
	require.NoError(t, err)

	done := StatusDone
	_, err = svc.Update(ctx, a.ID, UpdateInput{Status: &done})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, UpdateInput{Status: &done})
	require.ErrorIs(t, err, ErrImmutableDocument)

	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)
	require.Len(t, repo.journal.Moves, 1)
}

func TestEditAfterDoneRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	a, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, AdjustedQuantity: 10}},
	})
	require.NoError(t, err)

	done := StatusDone
	_, err = svc.Update(ctx, a.ID, UpdateInput{Status: &done})
	require.NoError(t, err)

	note := "late edit"
	_, err = svc.Update(ctx, a.ID, UpdateInput{Note: &note})
	require.ErrorIs(t, err, ErrImmutableDocument)
}

func TestItemCollectionSemantics(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	a, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items: []ItemInput{
			{ProductID: 1, AdjustedQuantity: 10},
			{ProductID: 2, AdjustedQuantity: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, a.Items, 2)
	first := a.Items[0]

	// Partial update touches only the mentioned item.
	a, err = svc.Update(ctx, a.ID, UpdateInput{
		Items: []ItemInput{{ID: first.ID, ProductID: first.ProductID, AdjustedQuantity: 12}},
	})
	require.NoError(t, err)
	require.Len(t, a.Items, 2)

	// Full update drops items absent from the incoming set.
	a, err = svc.Update(ctx, a.ID, UpdateInput{
		Items:   []ItemInput{{ID: first.ID, ProductID: first.ProductID, AdjustedQuantity: 15}},
		Replace: true,
	})
	require.NoError(t, err)
	require.Len(t, a.Items, 1)
	require.InDelta(t, 15, a.Items[0].AdjustedQuantity, 0.0001)
}
