package adjustments

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LocationPort resolves locations for validation and numbering.
type LocationPort interface {
	Get(ctx context.Context, id string) (locations.Location, error)
}

// ProductPort verifies referenced products are visible.
type ProductPort interface {
	EnsureVisible(ctx context.Context, ids []int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the stock adjustment workflow.
type Service struct {
	repo     Repository
	locs     LocationPort
	products ProductPort
	audit    AuditPort
}

// NewService builds Service.
func NewService(repo Repository, locs LocationPort, products ProductPort, audit AuditPort) *Service {
	return &Service{repo: repo, locs: locs, products: products, audit: audit}
}

// ItemInput describes one line on create or update. A zero ID inserts a new
// item; a non-zero ID upserts the existing one.
type ItemInput struct {
	ID               int64   `json:"id"`
	ProductID        int64   `json:"product_id" validate:"required,gt=0"`
	AdjustedQuantity float64 `json:"adjusted_quantity" validate:"gte=0"`
}

// CreateInput describes a new stock adjustment.
type CreateInput struct {
	WarehouseLocationID string      `json:"warehouse_location_id" validate:"required"`
	Note                string      `json:"note"`
	Items               []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID             int64       `json:"-"`
}

// UpdateInput describes changes to a draft adjustment. Items semantics: when
// Replace is true, items absent from the set are deleted and the rest are
// upserted by id; otherwise only the mentioned items are touched.
type UpdateInput struct {
	Note    *string     `json:"note"`
	Status  *Status     `json:"status"`
	Items   []ItemInput `json:"items"`
	Replace bool        `json:"-"`
	ActorID int64       `json:"-"`
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: product required", ErrInvalidQuantity)
		}
		if item.AdjustedQuantity < 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func productIDs(items []ItemInput) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Create opens a new draft adjustment with a {code}ADJ{5-digit} number.
func (s *Service) Create(ctx context.Context, input CreateInput) (Adjustment, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	if input.WarehouseLocationID == "" {
		return Adjustment{}, ErrLocationRequired
	}
	if err := validateItems(input.Items); err != nil {
		return Adjustment{}, err
	}
	loc, err := s.locs.Get(ctx, input.WarehouseLocationID)
	if err != nil {
		return Adjustment{}, fmt.Errorf("resolve warehouse location: %w", err)
	}
	if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
		return Adjustment{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, loc.Code+"ADJ")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		id, err = tx.Insert(ctx, Adjustment{
			Number:              sequence.Format(loc.Code+"ADJ", 5, n),
			Status:              StatusDraft,
			WarehouseLocationID: input.WarehouseLocationID,
			Note:                input.Note,
			CanEdit:             true,
			CreatedBy:           input.ActorID,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if err != nil {
			return err
		}
		for _, item := range input.Items {
			if _, err := tx.InsertItem(ctx, Item{
				AdjustmentID:     id,
				ProductID:        item.ProductID,
				AdjustedQuantity: item.AdjustedQuantity,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Update edits a draft adjustment and, when status moves to done, applies the
// declared counts to the ledger exactly once.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Adjustment, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return Adjustment{}, ErrInvalidStatus
	}
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.AdjustedQuantity < 0 {
				return Adjustment{}, ErrInvalidQuantity
			}
		}
		if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
			return Adjustment{}, err
		}
	}

	var becameDone bool
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		// Was-terminal guard: once done, every further edit is rejected and
		// the ledger mutation can never fire again.
		if existing.Status.Terminal() {
			return ErrImmutableDocument
		}
		if input.Status != nil && *input.Status == StatusDraft && existing.Status != StatusDraft {
			return ErrInvalidStatus
		}

		if err := applyItemChanges(ctx, tx, id, input.Items, input.Replace); err != nil {
			return err
		}
		if input.Note != nil {
			if err := tx.UpdateNote(ctx, id, *input.Note); err != nil {
				return err
			}
		}

		if input.Status != nil && input.Status.Terminal() {
			becameDone = true
			return s.applyDone(ctx, tx, existing.WarehouseLocationID, id, input.ActorID)
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	if becameDone && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:adjustment:done",
			Entity:   "stock_adjustment",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return s.repo.GetByID(ctx, schema, id)
}

// applyDone overwrites each ledger row with the declared count and journals
// the signed difference, all inside the document transaction.
func (s *Service) applyDone(ctx context.Context, tx TxRepository, locationID string, id int64, actorID int64) error {
	if err := tx.PostingGuard(ctx, id); err != nil {
		return err
	}
	current, err := tx.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(current.Items) == 0 {
		return ErrEmptyItems
	}
	ledger := tx.Ledger()
	journal := tx.Journal()
	for _, item := range current.Items {
		prev, err := ledger.Get(ctx, locationID, item.ProductID)
		if err != nil {
			return err
		}
		if _, err := ledger.Set(ctx, locationID, item.ProductID, item.AdjustedQuantity); err != nil {
			return err
		}
		delta := item.AdjustedQuantity - prev
		if delta == 0 {
			continue
		}
		move := stock.Move{
			Type:      stock.MoveTypeAdjust,
			ProductID: item.ProductID,
			Qty:       delta,
			Reference: current.Number,
			MovedBy:   actorID,
		}
		if delta > 0 {
			move.DestinationLocationID = &locationID
		} else {
			move.Qty = -delta
			move.SourceLocationID = &locationID
		}
		if _, err := journal.Record(ctx, move); err != nil {
			return err
		}
	}
	return tx.MarkDone(ctx, id, time.Now().UTC())
}

// Get returns one adjustment with items.
func (s *Service) Get(ctx context.Context, id int64) (Adjustment, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// List returns adjustments filtered by status.
func (s *Service) List(ctx context.Context, status *Status) ([]Adjustment, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, schema, status)
}

// applyItemChanges implements the shared item-collection semantics: replace
// deletes items absent from the incoming set then upserts the rest by id;
// partial upserts only the mentioned items.
func applyItemChanges(ctx context.Context, tx TxRepository, id int64, items []ItemInput, replace bool) error {
	if items == nil {
		return nil
	}
	if replace {
		var keep []int64
		for _, item := range items {
			if item.ID > 0 {
				keep = append(keep, item.ID)
			}
		}
		if err := tx.DeleteItemsNotIn(ctx, id, keep); err != nil {
			return err
		}
	}
	for _, item := range items {
		row := Item{ID: item.ID, AdjustmentID: id, ProductID: item.ProductID, AdjustedQuantity: item.AdjustedQuantity}
		if item.ID > 0 {
			if err := tx.UpdateItem(ctx, row); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.InsertItem(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
