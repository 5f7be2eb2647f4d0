// Package stock owns the per-location per-product stock ledger.
//
// LocationStock is the single source of truth for on-hand inventory. Every
// inventory document mutates it through the Ledger contract and nothing else
// is allowed to represent quantity independently.
package stock

import (
	"context"
	"errors"
	"time"
)

// LocationStock is the ledger row for one (location, product) pair.
type LocationStock struct {
	LocationID string    `json:"location_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   float64   `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger is the single mutation contract for location stock. Post and Set
// take a row-level lock on the (location, product) pair; rows are created
// lazily with quantity zero. The ledger performs no business validation —
// callers own the sign and magnitude of every mutation and must reject
// negative outcomes where their document type forbids them.
type Ledger interface {
	// Get returns the current quantity, zero when no row exists.
	Get(ctx context.Context, locationID string, productID int64) (float64, error)
	// Post adds delta (positive or negative) and returns the new quantity.
	Post(ctx context.Context, locationID string, productID int64, delta float64) (float64, error)
	// Set overwrites the quantity with an absolute declared count.
	Set(ctx context.Context, locationID string, productID int64, qty float64) (float64, error)
}

// MoveType tags stock move journal entries.
type MoveType string

const (
	MoveTypeIn       MoveType = "IN"
	MoveTypeOut      MoveType = "OUT"
	MoveTypeAdjust   MoveType = "ADJ"
	MoveTypeScrap    MoveType = "SCR"
	MoveTypeTransfer MoveType = "TRF"
	MoveTypeReturn   MoveType = "RET"
)

// Move records one applied ledger mutation for traceability. Moves are written
// synchronously in the same transaction as the mutation they describe.
type Move struct {
	ID                    int64     `json:"id"`
	Number                string    `json:"number"`
	Type                  MoveType  `json:"type"`
	ProductID             int64     `json:"product_id"`
	Qty                   float64   `json:"qty"`
	SourceLocationID      *string   `json:"source_location_id,omitempty"`
	DestinationLocationID *string   `json:"destination_location_id,omitempty"`
	Reference             string    `json:"reference"`
	MovedBy               int64     `json:"moved_by"`
	MovedAt               time.Time `json:"moved_at"`
}

// MoveJournal appends stock moves. Implementations assign the MOV/{type}/{n}
// number from the tenant's sequence table.
type MoveJournal interface {
	Record(ctx context.Context, m Move) (Move, error)
}

// ErrInsufficientStock is returned by document workflows when a decrement
// would drive a ledger quantity negative.
var ErrInsufficientStock = errors.New("insufficient stock for operation")
