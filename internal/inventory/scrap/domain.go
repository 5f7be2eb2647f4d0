// Package scrap provides the scrap document workflow. Scrapping writes off
// damaged or expired goods: on done each line decrements the source location's
// ledger row, and a decrement that would drive the quantity negative aborts
// the whole document.
package scrap

import (
	"errors"
	"time"
)

// Status is the scrap lifecycle status.
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

// Scrap is the document header.
type Scrap struct {
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

// Item carries the quantity to write off for one product.
type Item struct {
	ID        int64   `json:"id"`
	ScrapID   int64   `json:"scrap_id"`
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// Domain errors.
var (
	ErrNotFound          = errors.New("scrap not found")
	ErrImmutableDocument = errors.New("scrap is done and cannot be edited")
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("scrap quantity must be positive")
	ErrLocationRequired  = errors.New("warehouse location is required")
	ErrInvalidStatus     = errors.New("invalid status transition")
)
