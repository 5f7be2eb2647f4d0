package transfers

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
	docs     map[int64]*Transfer
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
		docs:    make(map[int64]*Transfer),
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

func (r *memRepo) GetByID(ctx context.Context, _ string, id int64) (Transfer, error) {
	return (&memTx{repo: r}).Get(ctx, id)
}

func (r *memRepo) List(_ context.Context, _ string, status *Status) ([]Transfer, error) {
	var out []Transfer
	for _, doc := range r.docs {
		if status == nil || doc.Status == *status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memTx) Get(_ context.Context, id int64) (Transfer, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	out := *doc
	out.Items = nil
	for _, item := range t.repo.items {
		if item.TransferID == id {
			out.Items = append(out.Items, *item)
		}
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, tr Transfer) (int64, error) {
	t.repo.nextDoc++
	tr.ID = t.repo.nextDoc
	t.repo.docs[tr.ID] = &tr
	return tr.ID, nil
}

func (t *memTx) MarkStatus(_ context.Context, id int64, status Status, at time.Time) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.CanEdit = false
	if status == StatusValidated {
		doc.ValidatedAt = &at
	}
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
	if !ok || existing.TransferID != item.TransferID {
		return ErrNotFound
	}
	*existing = item
	return nil
}

func (t *memTx) DeleteItemsNotIn(_ context.Context, transferID int64, keep []int64) error {
	keepSet := make(map[int64]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	for id, item := range t.repo.items {
		if item.TransferID == transferID && !keepSet[id] {
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

type fakeLocs struct {
	managers map[string]int64
	keepers  map[string]int64
}

func (f fakeLocs) Get(_ context.Context, id string) (locations.Location, error) {
	if id == "" {
		return locations.Location{}, locations.ErrNotFound
	}
	loc := locations.Location{ID: id, Code: id[:4], Type: locations.TypeInternal}
	if m, ok := f.managers[id]; ok {
		loc.ManagerID = &m
	}
	if k, ok := f.keepers[id]; ok {
		loc.KeeperID = &k
	}
	return loc, nil
}

type fakeProducts struct{}

func (fakeProducts) EnsureVisible(context.Context, []int64) error { return nil }

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), &shared.Tenant{Schema: "t_acme"})
}

func TestCreateValidations(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{}, nil)
	ctx := tenantCtx()

	_, err := svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 3}},
	})
	require.ErrorIs(t, err, ErrSameLocation)

	_, err = svc.Create(ctx, CreateInput{
		SourceLocationID: "WH0100001",
		Items:            []ItemInput{{ProductID: 1, QuantityRequested: 3}},
	})
	require.ErrorIs(t, err, ErrLocationRequired)

	_, err = svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreateRejectsSourceCustodian(t *testing.T) {
	repo := newMemRepo()
	locs := fakeLocs{managers: map[string]int64{"WH0100001": 42}}
	svc := NewService(repo, locs, fakeProducts{}, nil)

	_, err := svc.Create(tenantCtx(), CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 3}},
		ActorID:               42,
	})
	require.ErrorIs(t, err, ErrCustodyConflict)

	// A keeper is blocked the same as a manager.
	locs = fakeLocs{keepers: map[string]int64{"WH0100001": 7}}
	svc = NewService(repo, locs, fakeProducts{}, nil)
	_, err = svc.Create(tenantCtx(), CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 3}},
		ActorID:               7,
	})
	require.ErrorIs(t, err, ErrCustodyConflict)
}

func TestValidateConservesTotal(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{}, nil)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 10)
	require.NoError(t, err)

	tr, err := svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 6}},
		ActorID:               9,
	})
	require.NoError(t, err)
	require.Equal(t, "WH01TRF00001", tr.Number)

	validated := StatusValidated
	tr, err = svc.Update(ctx, tr.ID, UpdateInput{Status: &validated, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, StatusValidated, tr.Status)
	require.NotNil(t, tr.ValidatedAt)

	src, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	dst, err := repo.ledger.Get(ctx, "WH0200002", 1)
	require.NoError(t, err)
	require.InDelta(t, 4, src, 0.0001)
	require.InDelta(t, 6, dst, 0.0001)
	require.InDelta(t, 10, src+dst, 0.0001)

	require.Len(t, repo.journal.Moves, 1)
	move := repo.journal.Moves[0]
	require.Equal(t, stock.MoveTypeTransfer, move.Type)
	require.Equal(t, "WH0100001", *move.SourceLocationID)
	require.Equal(t, "WH0200002", *move.DestinationLocationID)
}

func TestValidateRejectsInsufficientSource(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{}, nil)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 2)
	require.NoError(t, err)

	tr, err := svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 5}},
	})
	require.NoError(t, err)

	validated := StatusValidated
	_, err = svc.Update(ctx, tr.ID, UpdateInput{Status: &validated})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestValidateFiresExactlyOnce(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{}, nil)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 10)
	require.NoError(t, err)

	tr, err := svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 6}},
	})
	require.NoError(t, err)

	validated := StatusValidated
	_, err = svc.Update(ctx, tr.ID, UpdateInput{Status: &validated})
	require.NoError(t, err)

	_, err = svc.Update(ctx, tr.ID, UpdateInput{Status: &validated})
	require.ErrorIs(t, err, ErrImmutableDocument)

	src, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 4, src, 0.0001)
	require.Len(t, repo.journal.Moves, 1)
}

func TestCancelFromDraftOnly(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeLocs{}, fakeProducts{}, nil)
	ctx := tenantCtx()

	_, err := repo.ledger.Set(ctx, "WH0100001", 1, 10)
	require.NoError(t, err)

	tr, err := svc.Create(ctx, CreateInput{
		SourceLocationID:      "WH0100001",
		DestinationLocationID: "WH0200002",
		Items:                 []ItemInput{{ProductID: 1, QuantityRequested: 6}},
	})
	require.NoError(t, err)

	tr, err = svc.Cancel(ctx, tr.ID, 0)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, tr.Status)
	require.False(t, tr.CanEdit)

	// Cancellation leaves the ledger untouched.
	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)
	require.Empty(t, repo.journal.Moves)

	// A cancelled transfer cannot be validated afterwards.
	validated := StatusValidated
	_, err = svc.Update(ctx, tr.ID, UpdateInput{Status: &validated})
	require.ErrorIs(t, err, ErrImmutableDocument)
}
