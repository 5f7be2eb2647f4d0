// Package products provides the product master data entity.
package products

import (
	"errors"
	"time"
)

// Product represents a product entity. Hidden products stay referencable by
// historical documents but cannot appear on new ones.
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	UOM       string    `json:"uom"`
	Price     float64   `json:"price"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Domain errors.
var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateCode indicates a product code collision.
	ErrDuplicateCode = errors.New("product code already exists")
	// ErrHiddenProduct indicates a document referenced a hidden or missing product.
	ErrHiddenProduct = errors.New("product is hidden or does not exist")
	// ErrInvalidInput indicates malformed product input.
	ErrInvalidInput = errors.New("invalid product input")
)
