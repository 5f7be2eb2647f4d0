// Package deliveries provides the outgoing delivery order workflow and its
// returns.
//
// A delivery order ships goods from an internal location to a customer. On
// the done transition each line decrements the source location's ledger by
// the quantity to deliver. A delivery return decrements the same source
// location again when it is created, modeling the reversal of the earlier
// customer-side increment.
package deliveries

import (
	"errors"
	"time"
)

// Status is the delivery order lifecycle status.
type Status string

const (
	StatusDraft Status = "draft"
	StatusDone  Status = "done"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusDone
}

// Terminal reports whether the status ends the document lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone
}

// Delivery is the document header.
type Delivery struct {
	ID                    int64      `json:"id"`
	Number                string     `json:"number"`
	Status                Status     `json:"status"`
	SourceLocationID      string     `json:"source_location_id"`
	DestinationLocationID string     `json:"destination_location_id"`
	CustomerID            string     `json:"customer_id"`
	Note                  string     `json:"note"`
	CanEdit               bool       `json:"can_edit"`
	CreatedBy             int64      `json:"created_by"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	DoneAt                *time.Time `json:"done_at,omitempty"`
	Items                 []Item     `json:"items,omitempty"`
}

// Item carries the quantity to deliver and the agreed unit price.
type Item struct {
	ID                int64   `json:"id"`
	DeliveryID        int64   `json:"delivery_id"`
	ProductID         int64   `json:"product_id"`
	QuantityToDeliver float64 `json:"quantity_to_deliver"`
	UnitPrice         float64 `json:"unit_price"`
}

// Return records delivered goods coming back. The ledger decrement at the
// delivery's source location happens when the return is created.
type Return struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	DeliveryID int64     `json:"delivery_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   float64   `json:"quantity"`
	Reason     string    `json:"reason"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Domain errors.
var (
	ErrNotFound          = errors.New("delivery order not found")
	ErrImmutableDocument = errors.New("delivery order is done and cannot be edited")
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("delivery quantity must be positive")
	ErrInvalidPrice      = errors.New("unit price must be non-negative")
	ErrLocationRequired  = errors.New("source location is required")
	ErrInvalidStatus     = errors.New("invalid status transition")
)
