package deliveries

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

// Service coordinates the delivery order workflow.
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
	QuantityToDeliver float64 `json:"quantity_to_deliver" validate:"required,gt=0"`
	UnitPrice         float64 `json:"unit_price" validate:"gte=0"`
}

// CreateInput describes a new delivery order.
type CreateInput struct {
	SourceLocationID      string      `json:"source_location_id" validate:"required"`
	DestinationLocationID string      `json:"destination_location_id"`
	CustomerID            string      `json:"customer_id"`
	Note                  string      `json:"note"`
	Items                 []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID               int64       `json:"-"`
}

// UpdateInput describes changes to a draft delivery.
type UpdateInput struct {
	Note    *string     `json:"note"`
	Status  *Status     `json:"status"`
	Items   []ItemInput `json:"items"`
	Replace bool        `json:"-"`
	ActorID int64       `json:"-"`
}

// ReturnInput describes delivered goods coming back.
type ReturnInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Reason    string  `json:"reason"`
	ActorID   int64   `json:"-"`
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: product required", ErrInvalidQuantity)
		}
		if item.QuantityToDeliver <= 0 {
			return ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return ErrInvalidPrice
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

// Create opens a new draft delivery with a {code}DO{5-digit} number from the
// source location's code. The destination defaults to the customer sentinel.
func (s *Service) Create(ctx context.Context, input CreateInput) (Delivery, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Delivery{}, err
	}
	if input.SourceLocationID == "" {
		return Delivery{}, ErrLocationRequired
	}
	if err := validateItems(input.Items); err != nil {
		return Delivery{}, err
	}
	source, err := s.locs.Get(ctx, input.SourceLocationID)
	if err != nil {
		return Delivery{}, fmt.Errorf("resolve source location: %w", err)
	}
	if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
		return Delivery{}, err
	}
	if input.DestinationLocationID == "" {
		input.DestinationLocationID = locations.SentinelCustomerID
	}

	var id int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, source.Code+"DO")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		id, err = tx.Insert(ctx, Delivery{
			Number:                sequence.Format(source.Code+"DO", 5, n),
			Status:                StatusDraft,
			SourceLocationID:      input.SourceLocationID,
			DestinationLocationID: input.DestinationLocationID,
			CustomerID:            input.CustomerID,
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
				DeliveryID:        id,
				ProductID:         item.ProductID,
				QuantityToDeliver: item.QuantityToDeliver,
				UnitPrice:         item.UnitPrice,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Update edits a draft delivery and, when status moves to done, ships the
// goods out of the source location exactly once.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Delivery, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Delivery{}, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return Delivery{}, ErrInvalidStatus
	}
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.QuantityToDeliver <= 0 {
				return Delivery{}, ErrInvalidQuantity
			}
			if item.UnitPrice < 0 {
				return Delivery{}, ErrInvalidPrice
			}
		}
		if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
			return Delivery{}, err
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
			return s.applyDone(ctx, tx, existing, input.ActorID)
		}
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}

	if becameDone && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:delivery:done",
			Entity:   "delivery_order",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return s.repo.GetByID(ctx, schema, id)
}

// applyDone decrements the source location by each line's quantity and
// journals an OUT move. A line that would overdraw the ledger aborts the
// transaction.
func (s *Service) applyDone(ctx context.Context, tx TxRepository, d Delivery, actorID int64) error {
	if err := tx.PostingGuard(ctx, d.ID); err != nil {
		return err
	}
	current, err := tx.Get(ctx, d.ID)
	if err != nil {
		return err
	}
	if len(current.Items) == 0 {
		return ErrEmptyItems
	}
	ledger := tx.Ledger()
	journal := tx.Journal()
	for _, item := range current.Items {
		onHand, err := ledger.Get(ctx, d.SourceLocationID, item.ProductID)
		if err != nil {
			return err
		}
		if onHand < item.QuantityToDeliver {
			return fmt.Errorf("product %d: have %.2f, need %.2f: %w",
				item.ProductID, onHand, item.QuantityToDeliver, stock.ErrInsufficientStock)
		}
		if _, err := ledger.Post(ctx, d.SourceLocationID, item.ProductID, -item.QuantityToDeliver); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, stock.Move{
			Type:                  stock.MoveTypeOut,
			ProductID:             item.ProductID,
			Qty:                   item.QuantityToDeliver,
			SourceLocationID:      &current.SourceLocationID,
			DestinationLocationID: &current.DestinationLocationID,
			Reference:             current.Number,
			MovedBy:               actorID,
		}); err != nil {
			return err
		}
	}
	return tx.MarkDone(ctx, d.ID, time.Now().UTC())
}

// CreateReturn records delivered goods coming back from the customer. The
// ledger decrement at the delivery's source location happens on creation.
func (s *Service) CreateReturn(ctx context.Context, deliveryID int64, input ReturnInput) (Return, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Return{}, err
	}
	if input.ProductID <= 0 || input.Quantity <= 0 {
		return Return{}, ErrInvalidQuantity
	}
	if err := s.products.EnsureVisible(ctx, []int64{input.ProductID}); err != nil {
		return Return{}, err
	}

	var ret Return
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.Get(ctx, deliveryID)
		if err != nil {
			return err
		}
		ledger := tx.Ledger()
		onHand, err := ledger.Get(ctx, parent.SourceLocationID, input.ProductID)
		if err != nil {
			return err
		}
		if onHand < input.Quantity {
			return fmt.Errorf("product %d: have %.2f, need %.2f: %w",
				input.ProductID, onHand, input.Quantity, stock.ErrInsufficientStock)
		}
		if _, err := ledger.Post(ctx, parent.SourceLocationID, input.ProductID, -input.Quantity); err != nil {
			return err
		}
		move, err := tx.Journal().Record(ctx, stock.Move{
			Type:             stock.MoveTypeReturn,
			ProductID:        input.ProductID,
			Qty:              input.Quantity,
			SourceLocationID: &parent.SourceLocationID,
			Reference:        parent.Number,
			MovedBy:          input.ActorID,
		})
		if err != nil {
			return err
		}
		ret = Return{
			Number:     move.Number,
			DeliveryID: deliveryID,
			ProductID:  input.ProductID,
			Quantity:   input.Quantity,
			Reason:     input.Reason,
			CreatedBy:  input.ActorID,
			CreatedAt:  time.Now().UTC(),
		}
		ret.ID, err = tx.InsertReturn(ctx, ret)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	return ret, nil
}

// Get returns one delivery with items.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Delivery{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// List returns deliveries filtered by status.
func (s *Service) List(ctx context.Context, status *Status) ([]Delivery, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, schema, status)
}

// ListReturns returns the returns recorded against a delivery.
func (s *Service) ListReturns(ctx context.Context, deliveryID int64) ([]Return, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, schema, deliveryID)
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
		row := Item{
			ID:                item.ID,
			DeliveryID:        id,
			ProductID:         item.ProductID,
			QuantityToDeliver: item.QuantityToDeliver,
			UnitPrice:         item.UnitPrice,
		}
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
