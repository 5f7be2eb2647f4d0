// Package receipts provides the goods receipt workflow: incoming products,
// the back orders derived from partially received ones, and returns to the
// supplier.
//
// A receipt carries expected and received quantities per product. On the
// validated transition each line increments the destination location's ledger
// by the received quantity. When received falls short of expected the caller
// either derives a back order carrying the shortfall as its new expected
// quantity, or corrects the receipt's expected quantities down to what
// arrived. The two paths are mutually exclusive.
package receipts

import (
	"errors"
	"time"
)

// Kind distinguishes an original receipt from a derived back order.
type Kind string

const (
	KindIncoming  Kind = "incoming"
	KindBackOrder Kind = "backorder"
)

// Status is the receipt lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusValidated
}

// Terminal reports whether the status ends the document lifecycle.
func (s Status) Terminal() bool {
	return s == StatusValidated
}

// Receipt is the document header for both incoming products and back orders.
// BackOrderOf links a back order to the receipt it was derived from.
type Receipt struct {
	ID                    int64      `json:"id"`
	Number                string     `json:"number"`
	Kind                  Kind       `json:"kind"`
	Status                Status     `json:"status"`
	SourceLocationID      string     `json:"source_location_id"`
	DestinationLocationID string     `json:"destination_location_id"`
	SupplierID            string     `json:"supplier_id"`
	ReceiptType           string     `json:"receipt_type"`
	PurchaseOrderID       *int64     `json:"purchase_order_id,omitempty"`
	BackOrderOf           *int64     `json:"backorder_of,omitempty"`
	Note                  string     `json:"note"`
	CanEdit               bool       `json:"can_edit"`
	CreatedBy             int64      `json:"created_by"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ValidatedAt           *time.Time `json:"validated_at,omitempty"`
	Items                 []Item     `json:"items,omitempty"`
}

// Item carries expected and received quantities for one product.
type Item struct {
	ID               int64   `json:"id"`
	ReceiptID        int64   `json:"receipt_id"`
	ProductID        int64   `json:"product_id"`
	ExpectedQuantity float64 `json:"expected_quantity"`
	QuantityReceived float64 `json:"quantity_received"`
}

// Shortfall returns the undelivered quantity, never negative.
func (i Item) Shortfall() float64 {
	if d := i.ExpectedQuantity - i.QuantityReceived; d > 0 {
		return d
	}
	return 0
}

// Return records goods sent back to the supplier. The ledger decrement at the
// source receipt's destination location happens when the return is created.
type Return struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	ReceiptID int64     `json:"receipt_id"`
	ProductID int64     `json:"product_id"`
	Quantity  float64   `json:"quantity"`
	Reason    string    `json:"reason"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Domain errors.
var (
	ErrNotFound          = errors.New("receipt not found")
	ErrImmutableDocument = errors.New("receipt is validated and cannot be edited")
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("quantities must be non-negative")
	ErrLocationRequired  = errors.New("destination location is required")
	ErrInvalidStatus     = errors.New("invalid status transition")
	// ErrExpectedMismatch rejects a receipt whose expected quantity disagrees
	// with the completed purchase order line it is linked to.
	ErrExpectedMismatch = errors.New("expected quantity does not match purchase order line")
	// ErrAlreadyFullyReceived means there is no shortfall to reconcile.
	ErrAlreadyFullyReceived = errors.New("receipt is already fully received")
	// ErrDuplicateBackOrder means a back order for this receipt already exists.
	ErrDuplicateBackOrder = errors.New("back order already exists for this receipt")
)
