// Package procurement exposes the purchase order read model consumed by the
// incoming goods workflow. The procurement document lifecycle itself lives
// upstream and is not managed here.
package procurement

import "errors"

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproved  POStatus = "APPROVED"
	POStatusCompleted POStatus = "COMPLETED"
	POStatusCancelled POStatus = "CANCELLED"
)

// PurchaseOrder is the header of an upstream purchase order.
type PurchaseOrder struct {
	ID         int64    `json:"id"`
	Number     string   `json:"number"`
	SupplierID string   `json:"supplier_id"`
	Status     POStatus `json:"status"`
	Lines      []POLine `json:"lines"`
}

// POLine is one ordered product with its agreed quantity.
type POLine struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// ErrNotFound indicates the purchase order does not exist.
var ErrNotFound = errors.New("purchase order not found")
