package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository reads purchase orders from the tenant schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a purchase order with its lines.
func (r *Repository) Get(ctx context.Context, schema string, id int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT id, number, supplier_id, status FROM purchase_orders WHERE id = $1`, id).
			Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx,
			`SELECT id, product_id, qty FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var line POLine
			if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty); err != nil {
				return err
			}
			po.Lines = append(po.Lines, line)
		}
		return rows.Err()
	})
	return po, err
}
