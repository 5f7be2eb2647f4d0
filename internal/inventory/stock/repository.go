package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository serves ledger reads outside of document transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetQuantity reads one ledger row. A missing pair reads as quantity zero.
func (r *Repository) GetQuantity(ctx context.Context, schema, locationID string, productID int64) (LocationStock, error) {
	row := LocationStock{LocationID: locationID, ProductID: productID}
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT quantity, updated_at FROM location_stock WHERE location_id = $1 AND product_id = $2`,
			locationID, productID).Scan(&row.Quantity, &row.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	return row, err
}

// ListByLocation returns all ledger rows for one location.
func (r *Repository) ListByLocation(ctx context.Context, schema, locationID string) ([]LocationStock, error) {
	var out []LocationStock
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT location_id, product_id, quantity, updated_at FROM location_stock WHERE location_id = $1 ORDER BY product_id`,
			locationID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ls LocationStock
			if err := rows.Scan(&ls.LocationID, &ls.ProductID, &ls.Quantity, &ls.UpdatedAt); err != nil {
				return err
			}
			out = append(out, ls)
		}
		return rows.Err()
	})
	return out, err
}

// Drift is one ledger row whose quantity disagrees with the move journal.
type Drift struct {
	LocationID string  `json:"location_id"`
	ProductID  int64   `json:"product_id"`
	Ledger     float64 `json:"ledger"`
	Journal    float64 `json:"journal"`
}

// ScanDrift recomputes quantities from the move journal and reports rows where
// the ledger disagrees beyond a small epsilon. Moves record deltas (inbound on
// the destination side, outbound on the source side), so the signed sum per
// pair must equal the ledger quantity.
func (r *Repository) ScanDrift(ctx context.Context, schema string) ([]Drift, error) {
	var out []Drift
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH journal AS (
				SELECT location_id, product_id, SUM(qty) AS qty FROM (
					SELECT destination_location_id AS location_id, product_id, qty
					FROM stock_moves WHERE destination_location_id IS NOT NULL
					UNION ALL
					SELECT source_location_id AS location_id, product_id, -qty
					FROM stock_moves WHERE source_location_id IS NOT NULL
				) m GROUP BY location_id, product_id
			)
			SELECT ls.location_id, ls.product_id, ls.quantity, COALESCE(j.qty, 0)
			FROM location_stock ls
			LEFT JOIN journal j ON j.location_id = ls.location_id AND j.product_id = ls.product_id
			WHERE ABS(ls.quantity - COALESCE(j.qty, 0)) > 0.0001
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d Drift
			if err := rows.Scan(&d.LocationID, &d.ProductID, &d.Ledger, &d.Journal); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}
