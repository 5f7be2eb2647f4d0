package scrap

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

// Service coordinates the scrap workflow.
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

// ItemInput describes one line on create or update.
type ItemInput struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

// CreateInput describes a new scrap document.
type CreateInput struct {
	WarehouseLocationID string      `json:"warehouse_location_id" validate:"required"`
	Note                string      `json:"note"`
	Items               []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID             int64       `json:"-"`
}

// UpdateInput describes changes to a draft scrap.
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
		if item.Quantity <= 0 {
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

// Create opens a new draft scrap with a {code}SCR{5-digit} number.
func (s *Service) Create(ctx context.Context, input CreateInput) (Scrap, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Scrap{}, err
	}
	if input.WarehouseLocationID == "" {
		return Scrap{}, ErrLocationRequired
	}
	if err := validateItems(input.Items); err != nil {
		return Scrap{}, err
	}
	loc, err := s.locs.Get(ctx, input.WarehouseLocationID)
	if err != nil {
		return Scrap{}, fmt.Errorf("resolve warehouse location: %w", err)
	}
	if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
		return Scrap{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, loc.Code+"SCR")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		id, err = tx.Insert(ctx, Scrap{
			Number:              sequence.Format(loc.Code+"SCR", 5, n),
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
				ScrapID:   id,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Scrap{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Update edits a draft scrap and, when status moves to done, writes off the
// scrapped quantities exactly once.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Scrap, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Scrap{}, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return Scrap{}, ErrInvalidStatus
	}
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.Quantity <= 0 {
				return Scrap{}, ErrInvalidQuantity
			}
		}
		if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
			return Scrap{}, err
		}
	}

	var becameDone bool
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
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
		return Scrap{}, err
	}

	if becameDone && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:scrap:done",
			Entity:   "scrap",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return s.repo.GetByID(ctx, schema, id)
}

// applyDone decrements the source location for each line and journals a SCR
// move. A line that would overdraw the ledger aborts the transaction.
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
		onHand, err := ledger.Get(ctx, locationID, item.ProductID)
		if err != nil {
			return err
		}
		if onHand < item.Quantity {
			return fmt.Errorf("product %d: have %.2f, need %.2f: %w",
				item.ProductID, onHand, item.Quantity, stock.ErrInsufficientStock)
		}
		if _, err := ledger.Post(ctx, locationID, item.ProductID, -item.Quantity); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, stock.Move{
			Type:             stock.MoveTypeScrap,
			ProductID:        item.ProductID,
			Qty:              item.Quantity,
			SourceLocationID: &locationID,
			Reference:        current.Number,
			MovedBy:          actorID,
		}); err != nil {
			return err
		}
	}
	return tx.MarkDone(ctx, id, time.Now().UTC())
}

// Get returns one scrap with items.
func (s *Service) Get(ctx context.Context, id int64) (Scrap, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Scrap{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// List returns scraps filtered by status.
func (s *Service) List(ctx context.Context, status *Status) ([]Scrap, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, schema, status)
}

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
		row := Item{ID: item.ID, ScrapID: id, ProductID: item.ProductID, Quantity: item.Quantity}
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
