package scrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	docs     map[int64]*Scrap
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
		docs:    make(map[int64]*Scrap),
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

func (r *memRepo) GetByID(ctx context.Context, _ string, id int64) (Scrap, error) {
	return (&memTx{repo: r}).Get(ctx, id)
}

func (r *memRepo) List(_ context.Context, _ string, status *Status) ([]Scrap, error) {
	var out []Scrap
	for _, doc := range r.docs {
		if status == nil || doc.Status == *status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memTx) Get(_ context.Context, id int64) (Scrap, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Scrap{}, ErrNotFound
	}
	out := *doc
	out.Items = nil
	for _, item := range t.repo.items {
		if item.ScrapID == id {
			out.Items = append(out.Items, *item)
		}
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, s Scrap) (int64, error) {
	t.repo.nextDoc++
	s.ID = t.repo.nextDoc
	t.repo.docs[s.ID] = &s
	return s.ID, nil
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
	if !ok || existing.ScrapID != item.ScrapID {
		return ErrNotFound
	}
	*existing = item
	return nil
}

func (t *memTx) DeleteItemsNotIn(_ context.Context, scrapID int64, keep []int64) error {
	keepSet := make(map[int64]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	for id, item := range t.repo.items {
		if item.ScrapID == scrapID && !keepSet[id] {
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

type fakeProducts struct{}

func (fakeProducts) EnsureVisible(context.Context, []int64) error { return nil }

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
		Items:               []ItemInput{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateInput{Items: []ItemInput{{ProductID: 1, Quantity: 3}}})
	require.ErrorIs(t, err, ErrLocationRequired)
}

func TestDoneDecrementsLedger(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 10)
	require.NoError(t, err)

	s, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, "WH01SCR00001", s.Number)

	done := StatusDone
	s, err = svc.Update(ctx, s.ID, UpdateInput{Status: &done})
	require.NoError(t, err)
	require.Equal(t, StatusDone, s.Status)
	require.False(t, s.CanEdit)

	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 6, qty, 0.0001)

	require.Len(t, repo.journal.Moves, 1)
	move := repo.journal.Moves[0]
	require.Equal(t, stock.MoveTypeScrap, move.Type)
	require.InDelta(t, 4, move.Qty, 0.0001)
	require.NotNil(t, move.SourceLocationID)
	require.Equal(t, "WH0100001", *move.SourceLocationID)
	require.Nil(t, move.DestinationLocationID)
}

func TestDoneRejectsOverdraw(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 2)
	require.NoError(t, err)

	s, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)

	done := StatusDone
	_, err = svc.Update(ctx, s.ID, UpdateInput{Status: &done})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// The document stays draft and editable after the failed transition.
	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
	require.True(t, got.CanEdit)
}

func TestDoneFiresExactlyOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 10)
	require.NoError(t, err)

	s, err := svc.Create(ctx, CreateInput{
		WarehouseLocationID: "WH0100001",
		Items:               []ItemInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)

	done := StatusDone
	_, err = svc.Update(ctx, s.ID, UpdateInput{Status: &done})
	require.NoError(t, err)

	_, err = svc.Update(ctx, s.ID, UpdateInput{Status: &done})
	require.ErrorIs(t, err, ErrImmutableDocument)

	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 6, qty, 0.0001)
	require.Len(t, repo.journal.Moves, 1)
}
