package receipts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	docs     map[int64]*Receipt
	items    map[int64]*Item
	returns  map[int64]*Return
	nextDoc  int64
	nextItem int64
	nextRet  int64
	seqs     map[string]int64
	posted   map[int64]bool
	ledger   *stock.InMemoryLedger
	journal  *stock.InMemoryJournal
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:    make(map[int64]*Receipt),
		items:   make(map[int64]*Item),
		returns: make(map[int64]*Return),
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

func (r *memRepo) GetByID(ctx context.Context, _ string, id int64) (Receipt, error) {
	return (&memTx{repo: r}).Get(ctx, id)
}

func (r *memRepo) List(_ context.Context, _ string, kind *Kind, status *Status) ([]Receipt, error) {
	var out []Receipt
	for _, doc := range r.docs {
		if kind != nil && doc.Kind != *kind {
			continue
		}
		if status != nil && doc.Status != *status {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memRepo) ListReturns(_ context.Context, _ string, receiptID int64) ([]Return, error) {
	var out []Return
	for _, ret := range r.returns {
		if ret.ReceiptID == receiptID {
			out = append(out, *ret)
		}
	}
	return out, nil
}

func (t *memTx) Get(_ context.Context, id int64) (Receipt, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	out := *doc
	out.Items = nil
	for _, item := range t.repo.items {
		if item.ReceiptID == id {
			out.Items = append(out.Items, *item)
		}
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, rc Receipt) (int64, error) {
	t.repo.nextDoc++
	rc.ID = t.repo.nextDoc
	t.repo.docs[rc.ID] = &rc
	return rc.ID, nil
}

func (t *memTx) MarkValidated(_ context.Context, id int64, at time.Time) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = StatusValidated
	doc.CanEdit = false
	doc.ValidatedAt = &at
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
	if !ok || existing.ReceiptID != item.ReceiptID {
		return ErrNotFound
	}
	*existing = item
	return nil
}

func (t *memTx) DeleteItemsNotIn(_ context.Context, receiptID int64, keep []int64) error {
	keepSet := make(map[int64]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	for id, item := range t.repo.items {
		if item.ReceiptID == receiptID && !keepSet[id] {
			delete(t.repo.items, id)
		}
	}
	return nil
}

func (t *memTx) BackOrderID(_ context.Context, receiptID int64) (int64, error) {
	for id, doc := range t.repo.docs {
		if doc.BackOrderOf != nil && *doc.BackOrderOf == receiptID {
			return id, nil
		}
	}
	return 0, nil
}

func (t *memTx) SetExpectedToReceived(_ context.Context, receiptID int64) error {
	for _, item := range t.repo.items {
		if item.ReceiptID == receiptID {
			item.ExpectedQuantity = item.QuantityReceived
		}
	}
	return nil
}

func (t *memTx) InsertReturn(_ context.Context, ret Return) (int64, error) {
	t.repo.nextRet++
	ret.ID = t.repo.nextRet
	t.repo.returns[ret.ID] = &ret
	return ret.ID, nil
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

type fakeOrders struct {
	orders map[int64]procurement.PurchaseOrder
}

func (f fakeOrders) Get(_ context.Context, _ string, id int64) (procurement.PurchaseOrder, error) {
	po, ok := f.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrNotFound
	}
	return po, nil
}

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), &shared.Tenant{Schema: "t_acme"})
}

func newTestService(repo *memRepo, orders fakeOrders) *Service {
	return NewService(repo, fakeLocs{}, fakeProducts{}, orders, nil)
}

func TestCreateDefaultsSupplierSource(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})

	rc, err := svc.Create(tenantCtx(), CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, "WH01IN00001", rc.Number)
	require.Equal(t, KindIncoming, rc.Kind)
	require.Equal(t, locations.SentinelSupplierID, rc.SourceLocationID)
}

func TestCreateChecksCompletedPurchaseOrder(t *testing.T) {
	repo := newMemRepo()
	poID := int64(55)
	orders := fakeOrders{orders: map[int64]procurement.PurchaseOrder{
		poID: {
			ID:     poID,
			Status: procurement.POStatusCompleted,
			Lines:  []procurement.POLine{{ProductID: 1, Qty: 10}},
		},
	}}
	svc := newTestService(repo, orders)
	ctx := tenantCtx()

	// Matching expected quantity passes.
	_, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		PurchaseOrderID:       &poID,
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10}},
	})
	require.NoError(t, err)

	// A mismatch is an error, not an override.
	_, err = svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		PurchaseOrderID:       &poID,
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 8}},
	})
	require.ErrorIs(t, err, ErrExpectedMismatch)
}

func TestCreateSkipsCheckForIncompleteOrder(t *testing.T) {
	repo := newMemRepo()
	poID := int64(56)
	orders := fakeOrders{orders: map[int64]procurement.PurchaseOrder{
		poID: {
			ID:     poID,
			Status: procurement.POStatusApproved,
			Lines:  []procurement.POLine{{ProductID: 1, Qty: 10}},
		},
	}}
	svc := newTestService(repo, orders)

	_, err := svc.Create(tenantCtx(), CreateInput{
		DestinationLocationID: "WH0100001",
		PurchaseOrderID:       &poID,
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 8}},
	})
	require.NoError(t, err)
}

func TestUpdateRechecksPurchaseOrder(t *testing.T) {
	repo := newMemRepo()
	poID := int64(57)
	orders := fakeOrders{orders: map[int64]procurement.PurchaseOrder{
		poID: {
			ID:     poID,
			Status: procurement.POStatusCompleted,
			Lines:  []procurement.POLine{{ProductID: 1, Qty: 10}},
		},
	}}
	svc := newTestService(repo, orders)
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		PurchaseOrderID:       &poID,
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10}},
	})
	require.NoError(t, err)

	// Editing the line away from the completed order's quantity is rejected.
	_, err = svc.Update(ctx, rc.ID, UpdateInput{
		Items: []ItemInput{{ID: rc.Items[0].ID, ProductID: 1, ExpectedQuantity: 8}},
	})
	require.ErrorIs(t, err, ErrExpectedMismatch)

	// An edit that keeps the agreed quantity still goes through.
	_, err = svc.Update(ctx, rc.ID, UpdateInput{
		Items: []ItemInput{{ID: rc.Items[0].ID, ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 10}},
	})
	require.NoError(t, err)
}

func TestValidateIncrementsDestinationOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 10}},
	})
	require.NoError(t, err)

	validated := StatusValidated
	rc, err = svc.Update(ctx, rc.ID, UpdateInput{Status: &validated})
	require.NoError(t, err)
	require.Equal(t, StatusValidated, rc.Status)
	require.False(t, rc.CanEdit)

	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)

	// A second validated call is rejected and posts nothing.
	_, err = svc.Update(ctx, rc.ID, UpdateInput{Status: &validated})
	require.ErrorIs(t, err, ErrImmutableDocument)

	qty, err = repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)
	require.Len(t, repo.journal.Moves, 1)
	require.Equal(t, stock.MoveTypeIn, repo.journal.Moves[0].Type)
}

func TestCreateBackOrderCarriesShortfall(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		SupplierID:            "SUPP00001",
		ReceiptType:           "purchase",
		Items: []ItemInput{
			{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 6},
			{ProductID: 2, ExpectedQuantity: 5, QuantityReceived: 5},
		},
	})
	require.NoError(t, err)

	bo, err := svc.CreateBackOrder(ctx, rc.ID, 9)
	require.NoError(t, err)
	require.Equal(t, KindBackOrder, bo.Kind)
	require.Equal(t, StatusDraft, bo.Status)
	require.NotNil(t, bo.BackOrderOf)
	require.Equal(t, rc.ID, *bo.BackOrderOf)
	require.Equal(t, rc.SourceLocationID, bo.SourceLocationID)
	require.Equal(t, rc.DestinationLocationID, bo.DestinationLocationID)
	require.Equal(t, "SUPP00001", bo.SupplierID)
	require.Equal(t, "purchase", bo.ReceiptType)

	// Only the shorted product gets a line, carrying the shortfall.
	require.Len(t, bo.Items, 1)
	require.Equal(t, int64(1), bo.Items[0].ProductID)
	require.InDelta(t, 4, bo.Items[0].ExpectedQuantity, 0.0001)
	require.InDelta(t, 0, bo.Items[0].QuantityReceived, 0.0001)

	// A second back order for the same receipt is rejected.
	_, err = svc.CreateBackOrder(ctx, rc.ID, 9)
	require.ErrorIs(t, err, ErrDuplicateBackOrder)
}

func TestCreateBackOrderRejectsFullReceipt(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateBackOrder(ctx, rc.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyFullyReceived)
}

func TestCorrectToReceivedWritesOffShortfall(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 6}},
	})
	require.NoError(t, err)

	rc, err = svc.CorrectToReceived(ctx, rc.ID, 0)
	require.NoError(t, err)
	require.InDelta(t, 6, rc.Items[0].ExpectedQuantity, 0.0001)

	// With the shortfall written off, a back order can no longer be derived.
	_, err = svc.CreateBackOrder(ctx, rc.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyFullyReceived)
}

func TestCorrectToReceivedExcludesBackOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 6}},
	})
	require.NoError(t, err)

	_, err = svc.CreateBackOrder(ctx, rc.ID, 0)
	require.NoError(t, err)

	_, err = svc.CorrectToReceived(ctx, rc.ID, 0)
	require.ErrorIs(t, err, ErrDuplicateBackOrder)
}

func TestCreateReturnDecrementsOnCreate(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, fakeOrders{})
	ctx := tenantCtx()

	rc, err := svc.Create(ctx, CreateInput{
		DestinationLocationID: "WH0100001",
		Items:                 []ItemInput{{ProductID: 1, ExpectedQuantity: 10, QuantityReceived: 10}},
	})
	require.NoError(t, err)

	validated := StatusValidated
	_, err = svc.Update(ctx, rc.ID, UpdateInput{Status: &validated})
	require.NoError(t, err)

	ret, err := svc.CreateReturn(ctx, rc.ID, ReturnInput{ProductID: 1, Quantity: 3, Reason: "damaged"})
	require.NoError(t, err)
	require.InDelta(t, 3, ret.Quantity, 0.0001)

	qty, err := repo.ledger.Get(ctx, "WH0100001", 1)
	require.NoError(t, err)
	require.InDelta(t, 7, qty, 0.0001)

	// Returning more than on hand is rejected.
	_, err = svc.CreateReturn(ctx, rc.ID, ReturnInput{ProductID: 1, Quantity: 100})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}
