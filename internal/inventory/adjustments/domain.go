// Package adjustments provides the stock adjustment document workflow.
//
// A stock adjustment declares the true counted quantity per product for one
// warehouse location. On the transition to done the ledger row is overwritten
// with the declared count (set semantics), unlike every other document type
// which applies deltas.
package adjustments

import (
	"errors"
	"time"
)

// Status is the adjustment lifecycle status.
type Status string

const (
	// StatusDraft allows edits.
	StatusDraft Status = "draft"
	// StatusDone is terminal; the ledger mutation has been applied.
	StatusDone Status = "done"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusDone
}

// Terminal reports whether the status ends the document lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone
}

// Adjustment is the document header.
type Adjustment struct {
	ID                  int64      `json:"id"`
	Number              string     `json:"number"`
	Status              Status     `json:"status"`
	WarehouseLocationID string     `json:"warehouse_location_id"`
	Note                string     `json:"note"`
	CanEdit             bool       `json:"can_edit"`
	CreatedBy           int64      `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DoneAt              *time.Time `json:"done_at,omitempty"`
	Items               []Item     `json:"items,omitempty"`
}

// Item carries the declared count for one product.
type Item struct {
	ID               int64   `json:"id"`
	AdjustmentID     int64   `json:"adjustment_id"`
	ProductID        int64   `json:"product_id"`
	AdjustedQuantity float64 `json:"adjusted_quantity"`
}

// Domain errors.
var (
	// ErrNotFound indicates the adjustment does not exist.
	ErrNotFound = errors.New("stock adjustment not found")
	// ErrImmutableDocument indicates an edit attempt on a terminal document.
	ErrImmutableDocument = errors.New("stock adjustment is done and cannot be edited")
	// ErrEmptyItems indicates a document without line items.
	ErrEmptyItems = errors.New("at least one item is required")
	// ErrInvalidQuantity indicates a negative declared count.
	ErrInvalidQuantity = errors.New("adjusted quantity must be non-negative")
	// ErrLocationRequired indicates a missing warehouse location.
	ErrLocationRequired = errors.New("warehouse location is required")
	// ErrInvalidStatus indicates an unknown or backward status value.
	ErrInvalidStatus = errors.New("invalid status transition")
)
