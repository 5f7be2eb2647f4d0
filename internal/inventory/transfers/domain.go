// Package transfers provides the internal transfer document workflow. A
// transfer moves goods between two internal locations: on the validated
// transition each line decrements the source and increments the destination
// by the same quantity, so the ledger sum across both locations is unchanged.
package transfers

import (
	"errors"
	"time"
)

// Status is the transfer lifecycle status. Cancelled is reachable from draft
// only; validated and cancelled are both terminal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusValidated || s == StatusCancelled
}

// Terminal reports whether the status ends the document lifecycle.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusCancelled
}

// Transfer is the document header.
type Transfer struct {
	ID                    int64      `json:"id"`
	Number                string     `json:"number"`
	Status                Status     `json:"status"`
	SourceLocationID      string     `json:"source_location_id"`
	DestinationLocationID string     `json:"destination_location_id"`
	Note                  string     `json:"note"`
	CanEdit               bool       `json:"can_edit"`
	CreatedBy             int64      `json:"created_by"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ValidatedAt           *time.Time `json:"validated_at,omitempty"`
	Items                 []Item     `json:"items,omitempty"`
}

// Item carries the requested quantity for one product.
type Item struct {
	ID                int64   `json:"id"`
	TransferID        int64   `json:"transfer_id"`
	ProductID         int64   `json:"product_id"`
	QuantityRequested float64 `json:"quantity_requested"`
}

// Domain errors.
var (
	ErrNotFound          = errors.New("internal transfer not found")
	ErrImmutableDocument = errors.New("internal transfer is terminal and cannot be edited")
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("requested quantity must be positive")
	ErrLocationRequired  = errors.New("source and destination locations are required")
	ErrSameLocation      = errors.New("source and destination must differ")
	// ErrCustodyConflict rejects a transfer validated by the custodian of the
	// source location. Whoever manages or keeps the stock must not also sign
	// off on moving it out.
	ErrCustodyConflict = errors.New("acting user manages the source location")
	ErrInvalidStatus   = errors.New("invalid status transition")
)
