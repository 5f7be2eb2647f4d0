package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
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

// PurchaseOrderPort reads the upstream purchase order used to cross-check
// expected quantities.
type PurchaseOrderPort interface {
	Get(ctx context.Context, schema string, id int64) (procurement.PurchaseOrder, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the goods receipt workflow.
type Service struct {
	repo     Repository
	locs     LocationPort
	products ProductPort
	orders   PurchaseOrderPort
	audit    AuditPort
}

// NewService builds Service.
func NewService(repo Repository, locs LocationPort, products ProductPort, orders PurchaseOrderPort, audit AuditPort) *Service {
	return &Service{repo: repo, locs: locs, products: products, orders: orders, audit: audit}
}

// ItemInput describes one line on create or update.
type ItemInput struct {
	ID               int64   `json:"id"`
	ProductID        int64   `json:"product_id" validate:"required,gt=0"`
	ExpectedQuantity float64 `json:"expected_quantity" validate:"gte=0"`
	QuantityReceived float64 `json:"quantity_received" validate:"gte=0"`
}

// CreateInput describes a new incoming product receipt.
type CreateInput struct {
	SourceLocationID      string      `json:"source_location_id"`
	DestinationLocationID string      `json:"destination_location_id" validate:"required"`
	SupplierID            string      `json:"supplier_id"`
	ReceiptType           string      `json:"receipt_type"`
	PurchaseOrderID       *int64      `json:"purchase_order_id"`
	Note                  string      `json:"note"`
	Items                 []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID               int64       `json:"-"`
}

// UpdateInput describes changes to a draft receipt.
type UpdateInput struct {
	Note    *string     `json:"note"`
	Status  *Status     `json:"status"`
	Items   []ItemInput `json:"items"`
	Replace bool        `json:"-"`
	ActorID int64       `json:"-"`
}

// ReturnInput describes goods going back to the supplier.
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
		if item.ExpectedQuantity < 0 || item.QuantityReceived < 0 {
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

// checkPurchaseOrder cross-validates expected quantities against a completed
// purchase order's lines. A mismatch is an error, never a silent override.
func (s *Service) checkPurchaseOrder(ctx context.Context, schema string, poID int64, items []ItemInput) error {
	po, err := s.orders.Get(ctx, schema, poID)
	if err != nil {
		return fmt.Errorf("resolve purchase order: %w", err)
	}
	if po.Status != procurement.POStatusCompleted {
		return nil
	}
	ordered := make(map[int64]float64, len(po.Lines))
	for _, line := range po.Lines {
		ordered[line.ProductID] = line.Qty
	}
	for _, item := range items {
		qty, ok := ordered[item.ProductID]
		if !ok || qty != item.ExpectedQuantity {
			return fmt.Errorf("product %d: %w", item.ProductID, ErrExpectedMismatch)
		}
	}
	return nil
}

// Create opens a new draft receipt with a {code}IN{5-digit} number from the
// destination location's code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if input.DestinationLocationID == "" {
		return Receipt{}, ErrLocationRequired
	}
	if err := validateItems(input.Items); err != nil {
		return Receipt{}, err
	}
	dest, err := s.locs.Get(ctx, input.DestinationLocationID)
	if err != nil {
		return Receipt{}, fmt.Errorf("resolve destination location: %w", err)
	}
	if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
		return Receipt{}, err
	}
	if input.PurchaseOrderID != nil {
		if err := s.checkPurchaseOrder(ctx, schema, *input.PurchaseOrderID, input.Items); err != nil {
			return Receipt{}, err
		}
	}
	if input.SourceLocationID == "" {
		input.SourceLocationID = locations.SentinelSupplierID
	}

	var id int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, dest.Code+"IN")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		id, err = tx.Insert(ctx, Receipt{
			Number:                sequence.Format(dest.Code+"IN", 5, n),
			Kind:                  KindIncoming,
			Status:                StatusDraft,
			SourceLocationID:      input.SourceLocationID,
			DestinationLocationID: input.DestinationLocationID,
			SupplierID:            input.SupplierID,
			ReceiptType:           input.ReceiptType,
			PurchaseOrderID:       input.PurchaseOrderID,
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
				ReceiptID:        id,
				ProductID:        item.ProductID,
				ExpectedQuantity: item.ExpectedQuantity,
				QuantityReceived: item.QuantityReceived,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// Update edits a draft receipt and, when status moves to validated, increments
// the destination ledger by each line's received quantity exactly once.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return Receipt{}, ErrInvalidStatus
	}
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.ExpectedQuantity < 0 || item.QuantityReceived < 0 {
				return Receipt{}, ErrInvalidQuantity
			}
		}
		if err := s.products.EnsureVisible(ctx, productIDs(input.Items)); err != nil {
			return Receipt{}, err
		}
	}

	var becameValidated bool
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
		// Edited lines must still agree with a linked completed purchase
		// order; the create-time check alone would let an edit smuggle in a
		// mismatched expectation before validation.
		if input.Items != nil && existing.PurchaseOrderID != nil {
			current, err := tx.Get(ctx, id)
			if err != nil {
				return err
			}
			lines := make([]ItemInput, 0, len(current.Items))
			for _, item := range current.Items {
				lines = append(lines, ItemInput{
					ProductID:        item.ProductID,
					ExpectedQuantity: item.ExpectedQuantity,
					QuantityReceived: item.QuantityReceived,
				})
			}
			if err := s.checkPurchaseOrder(ctx, schema, *existing.PurchaseOrderID, lines); err != nil {
				return err
			}
		}
		if input.Note != nil {
			if err := tx.UpdateNote(ctx, id, *input.Note); err != nil {
				return err
			}
		}

		if input.Status != nil && input.Status.Terminal() {
			becameValidated = true
			return s.applyValidated(ctx, tx, existing, input.ActorID)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	if becameValidated && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:receipt:validated",
			Entity:   "receipt",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return s.repo.GetByID(ctx, schema, id)
}

// applyValidated increments the destination ledger by each line's received
// quantity and journals an IN move. Lines with nothing received post nothing.
func (s *Service) applyValidated(ctx context.Context, tx TxRepository, rc Receipt, actorID int64) error {
	if err := tx.PostingGuard(ctx, rc.ID); err != nil {
		return err
	}
	current, err := tx.Get(ctx, rc.ID)
	if err != nil {
		return err
	}
	if len(current.Items) == 0 {
		return ErrEmptyItems
	}
	ledger := tx.Ledger()
	journal := tx.Journal()
	for _, item := range current.Items {
		if item.QuantityReceived == 0 {
			continue
		}
		if _, err := ledger.Post(ctx, rc.DestinationLocationID, item.ProductID, item.QuantityReceived); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, stock.Move{
			Type:                  stock.MoveTypeIn,
			ProductID:             item.ProductID,
			Qty:                   item.QuantityReceived,
			SourceLocationID:      &current.SourceLocationID,
			DestinationLocationID: &current.DestinationLocationID,
			Reference:             current.Number,
			MovedBy:               actorID,
		}); err != nil {
			return err
		}
	}
	return tx.MarkValidated(ctx, rc.ID, time.Now().UTC())
}

// CreateBackOrder derives a follow-up receipt carrying the shortfall of every
// partially received line as its new expected quantity. The back order copies
// the parent's routing and supplier fields and starts in draft with nothing
// received yet.
func (s *Service) CreateBackOrder(ctx context.Context, receiptID int64, actorID int64) (Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Receipt{}, err
	}

	var backOrderID int64
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		if existing, err := tx.BackOrderID(ctx, receiptID); err != nil {
			return err
		} else if existing != 0 {
			return ErrDuplicateBackOrder
		}

		var short []Item
		for _, item := range parent.Items {
			if item.Shortfall() > 0 {
				short = append(short, item)
			}
		}
		if len(short) == 0 {
			return ErrAlreadyFullyReceived
		}

		dest, err := s.locs.Get(ctx, parent.DestinationLocationID)
		if err != nil {
			return fmt.Errorf("resolve destination location: %w", err)
		}
		n, err := tx.NextNumber(ctx, dest.Code+"BO")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		backOrderID, err = tx.Insert(ctx, Receipt{
			Number:                sequence.Format(dest.Code+"BO", 5, n),
			Kind:                  KindBackOrder,
			Status:                StatusDraft,
			SourceLocationID:      parent.SourceLocationID,
			DestinationLocationID: parent.DestinationLocationID,
			SupplierID:            parent.SupplierID,
			ReceiptType:           parent.ReceiptType,
			PurchaseOrderID:       parent.PurchaseOrderID,
			BackOrderOf:           &parent.ID,
			CanEdit:               true,
			CreatedBy:             actorID,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
		if err != nil {
			return err
		}
		for _, item := range short {
			if _, err := tx.InsertItem(ctx, Item{
				ReceiptID:        backOrderID,
				ProductID:        item.ProductID,
				ExpectedQuantity: item.Shortfall(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "inventory:receipt:backorder",
			Entity:   "receipt",
			EntityID: fmt.Sprintf("%d", backOrderID),
		})
	}
	return s.repo.GetByID(ctx, schema, backOrderID)
}

// CorrectToReceived writes off the shortfall by setting each line's expected
// quantity to what actually arrived. Mutually exclusive with back-order
// creation for the same receipt.
func (s *Service) CorrectToReceived(ctx context.Context, receiptID int64, actorID int64) (Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Receipt{}, err
	}
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		if existing, err := tx.BackOrderID(ctx, receiptID); err != nil {
			return err
		} else if existing != 0 {
			return ErrDuplicateBackOrder
		}
		var hasShortfall bool
		for _, item := range parent.Items {
			if item.Shortfall() > 0 {
				hasShortfall = true
				break
			}
		}
		if !hasShortfall {
			return ErrAlreadyFullyReceived
		}
		return tx.SetExpectedToReceived(ctx, receiptID)
	})
	if err != nil {
		return Receipt{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "inventory:receipt:corrected",
			Entity:   "receipt",
			EntityID: fmt.Sprintf("%d", receiptID),
		})
	}
	return s.repo.GetByID(ctx, schema, receiptID)
}

// CreateReturn sends goods back to the supplier. The ledger decrement at the
// receipt's destination happens when the return is created, not on a later
// transition.
func (s *Service) CreateReturn(ctx context.Context, receiptID int64, input ReturnInput) (Return, error) {
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
		parent, err := tx.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		ledger := tx.Ledger()
		onHand, err := ledger.Get(ctx, parent.DestinationLocationID, input.ProductID)
		if err != nil {
			return err
		}
		if onHand < input.Quantity {
			return fmt.Errorf("product %d: have %.2f, need %.2f: %w",
				input.ProductID, onHand, input.Quantity, stock.ErrInsufficientStock)
		}
		if _, err := ledger.Post(ctx, parent.DestinationLocationID, input.ProductID, -input.Quantity); err != nil {
			return err
		}
		move, err := tx.Journal().Record(ctx, stock.Move{
			Type:                  stock.MoveTypeReturn,
			ProductID:             input.ProductID,
			Qty:                   input.Quantity,
			SourceLocationID:      &parent.DestinationLocationID,
			DestinationLocationID: &parent.SourceLocationID,
			Reference:             parent.Number,
			MovedBy:               input.ActorID,
		})
		if err != nil {
			return err
		}
		ret = Return{
			Number:    move.Number,
			ReceiptID: receiptID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Reason:    input.Reason,
			CreatedBy: input.ActorID,
			CreatedAt: time.Now().UTC(),
		}
		ret.ID, err = tx.InsertReturn(ctx, ret)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	return ret, nil
}

// Get returns one receipt with items.
func (s *Service) Get(ctx context.Context, id int64) (Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Receipt{}, err
	}
	return s.repo.GetByID(ctx, schema, id)
}

// List returns receipts filtered by kind and status.
func (s *Service) List(ctx context.Context, kind *Kind, status *Status) ([]Receipt, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, schema, kind, status)
}

// ListReturns returns the returns recorded against a receipt.
func (s *Service) ListReturns(ctx context.Context, receiptID int64) ([]Return, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, schema, receiptID)
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
			ID:               item.ID,
			ReceiptID:        id,
			ProductID:        item.ProductID,
			ExpectedQuantity: item.ExpectedQuantity,
			QuantityReceived: item.QuantityReceived,
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
