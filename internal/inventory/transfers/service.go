package transfers

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

// Service coordinates the internal transfer workflow.
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
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id" validate:"required,gt=0"`
	QuantityRequested float64 `json:"quantity_requested" validate:"required,gt=0"`
}

// CreateInput describes a new internal transfer.
type CreateInput struct {
	SourceLocationID      string      `json:"source_location_id" validate:"required"`
	DestinationLocationID string      `json:"destination_location_id" validate:"required"`
	Note                  string      `json:"note"`
	Items                 []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID               int64       `json:"-"`
}

// UpdateInput describes changes to a draft transfer.
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
		if item.QuantityRequested <= 0 {
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

// custodyCheck rejects actors who manage or keep the source location. The
// person in custody of the stock must not also authorize its removal.
func custodyCheck(loc locations.Location, actorID int64) error {
	if actorID == 0 {
		return nil
	}
	if loc.ManagerID != nil && *loc.ManagerID == actorID {
		return ErrCustodyConflict
	}
	if loc.KeeperID != nil && *loc.KeeperID == actorID {
		return ErrCustodyConflict
	}
	return nil
}

// Create opens a new draft transfer with a {code}TRF{5-digit} number from the
// source location's code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Transfer{}, err
	}
	if input.SourceLocationID == "" || input.DestinationLocationID == "" {
		return Transfer{}, ErrLocationRequired
	}
	if input.SourceLocationID == input.DestinationLocationID {
		return Transfer{}, ErrSameLocation
	}
	if err := validateItems(input.Items); err != nil {
		return Transfer{}, err
	}
	source, err := s.locs.Get(ctx, input.SourceLocationID)
	if err != nil {
		return Transfer{}, fmt.Errorf("resolve source location: %w", err)
	}
	if _, err := s.locs.Get(ctx, input.DestinationLocationID); err != nil {
		return Transfer{}, fmt.Errorf("resolve destination location: %w", err)
	}
	if err := custodyCheck(source, input.ActorID); err != nil {
		return Transfer{}, err
	}
	if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
		return Transfer{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, source.Code+"TRF")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		id, err = tx.Insert(ctx, Transfer{
			Number:                sequence.Format(source.Code+"TRF", 5, n),
			Status:                StatusDraft,
			SourceLocationID:      input.SourceLocationID,
			DestinationLocationID: input.DestinationLocationID,
			Note:                  input.Note,
			CanEdit:               true,
			CreatedBy:             input.ActorID,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
		if err != nil {
			return err
		}
		for _, item := range input.Items {
			if _, err := tx.InsertItem(ctx, Item{
				TransferID:        id,
				ProductID:         item.ProductID,
				QuantityRequested: item.QuantityRequested,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Update edits a draft transfer. Moving to validated applies both ledger legs
// exactly once; moving to cancelled just closes the document.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Transfer, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Transfer{}, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return Transfer{}, ErrInvalidStatus
	}
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.QuantityRequested <= 0 {
				return Transfer{}, ErrInvalidQuantity
			}
		}
		if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
			return Transfer{}, err
		}
	}

	var becameTerminal Status
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

		if input.Status == nil || !input.Status.Terminal() {
			return nil
		}
		becameTerminal = *input.Status
		if *input.Status == StatusCancelled {
			return tx.MarkStatus(ctx, id, StatusCancelled, time.Now().UTC())
		}

		source, err := s.locs.Get(ctx, existing.SourceLocationID)
		if err != nil {
			return fmt.Errorf("resolve source location: %w", err)
		}
		if err := custodyCheck(source, input.ActorID); err != nil {
			return err
		}
		return s.applyValidated(ctx, tx, existing, input.ActorID)
	})
	if err != nil {
		return Transfer{}, err
	}

	if becameTerminal != "" && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:transfer:" + string(becameTerminal),
			Entity:   "internal_transfer",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Cancel moves a draft transfer to cancelled without touching the ledger.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (Transfer, error) {
	cancelled := StatusCancelled
	return s.Update(ctx, id, UpdateInput{Status: &cancelled, ActorID: actorID})
}

// applyValidated moves each line's quantity from source to destination. Both
// legs post the same quantity so the product's total across the two locations
// is conserved.
func (s *Service) applyValidated(ctx context.Context, tx TxRepository, tr Transfer, actorID int64) error {
	if err := tx.PostingGuard(ctx, tr.ID); err != nil {
		return err
	}
	current, err := tx.Get(ctx, tr.ID)
	if err != nil {
		return err
	}
	if len(current.Items) == 0 {
		return ErrEmptyItems
	}
	ledger := tx.Ledger()
	journal := tx.Journal()
	for _, item := range current.Items {
		onHand, err := ledger.Get(ctx, tr.SourceLocationID, item.ProductID)
		if err != nil {
			return err
		}
		if onHand < item.QuantityRequested {
			return fmt.Errorf("product %d: have %.2f, need %.2f: %w",
				item.ProductID, onHand, item.QuantityRequested, stock.ErrInsufficientStock)
		}
		if _, err := ledger.Post(ctx, tr.SourceLocationID, item.ProductID, -item.QuantityRequested); err != nil {
			return err
		}
		if _, err := ledger.Post(ctx, tr.DestinationLocationID, item.ProductID, item.QuantityRequested); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, stock.Move{
			Type:                  stock.MoveTypeTransfer,
			ProductID:             item.ProductID,
			Qty:                   item.QuantityRequested,
			SourceLocationID:      &tr.SourceLocationID,
			DestinationLocationID: &tr.DestinationLocationID,
			Reference:             current.Number,
			MovedBy:               actorID,
		}); err != nil {
			return err
		}
	}
	return tx.MarkStatus(ctx, tr.ID, StatusValidated, time.Now().UTC())
}

// Get returns one transfer with items.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Transfer{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// List returns transfers filtered by status.
func (s *Service) List(ctx context.Context, status *Status) ([]Transfer, error) {
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
		row := Item{ID: item.ID, TransferID: id, ProductID: item.ProductID, QuantityRequested: item.QuantityRequested}
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
