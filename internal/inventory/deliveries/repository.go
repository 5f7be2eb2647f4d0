package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	Get(ctx context.Context, id int64) (Delivery, error)
	Insert(ctx context.Context, d Delivery) (int64, error)
	MarkDone(ctx context.Context, id int64, doneAt time.Time) error
	UpdateNote(ctx context.Context, id int64, note string) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItemsNotIn(ctx context.Context, deliveryID int64, keep []int64) error
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	NextNumber(ctx context.Context, prefix string) (int64, error)
	PostingGuard(ctx context.Context, id int64) error
	Ledger() stock.Ledger
	Journal() stock.MoveJournal
}

// Repository persists delivery orders in the tenant schema.
type Repository interface {
	WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, schema string, id int64) (Delivery, error)
	List(ctx context.Context, schema string, status *Status) ([]Delivery, error)
	ListReturns(ctx context.Context, schema string, deliveryID int64) ([]Return, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error {
	return db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetByID(ctx context.Context, schema string, id int64) (Delivery, error) {
	var d Delivery
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		d, err = (&txRepository{tx: tx}).Get(ctx, id)
		return err
	})
	return d, err
}

func (r *repository) List(ctx context.Context, schema string, status *Status) ([]Delivery, error) {
	var out []Delivery
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		query := `SELECT id, number, status, source_location_id, destination_location_id, customer_id, note, can_edit, created_by, created_at, updated_at, done_at
			FROM delivery_orders`
		args := []any{}
		if status != nil {
			query += ` WHERE status = $1`
			args = append(args, string(*status))
		}
		query += ` ORDER BY id DESC`
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d Delivery
			if err := rows.Scan(&d.ID, &d.Number, &d.Status, &d.SourceLocationID, &d.DestinationLocationID,
				&d.CustomerID, &d.Note, &d.CanEdit, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.DoneAt); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repository) ListReturns(ctx context.Context, schema string, deliveryID int64) ([]Return, error) {
	var out []Return
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, number, delivery_id, product_id, quantity, reason, created_by, created_at
			FROM delivery_returns WHERE delivery_id = $1 ORDER BY id
		`, deliveryID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ret Return
			if err := rows.Scan(&ret.ID, &ret.Number, &ret.DeliveryID, &ret.ProductID,
				&ret.Quantity, &ret.Reason, &ret.CreatedBy, &ret.CreatedAt); err != nil {
				return err
			}
			out = append(out, ret)
		}
		return rows.Err()
	})
	return out, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Get(ctx context.Context, id int64) (Delivery, error) {
	var d Delivery
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, status, source_location_id, destination_location_id, customer_id, note, can_edit, created_by, created_at, updated_at, done_at
		FROM delivery_orders WHERE id = $1
	`, id).Scan(&d.ID, &d.Number, &d.Status, &d.SourceLocationID, &d.DestinationLocationID,
		&d.CustomerID, &d.Note, &d.CanEdit, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.DoneAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, err
	}
	rows, err := t.tx.Query(ctx,
		`SELECT id, delivery_id, product_id, quantity_to_deliver, unit_price FROM delivery_order_items WHERE delivery_id = $1 ORDER BY id`, id)
	if err != nil {
		return Delivery{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DeliveryID, &item.ProductID, &item.QuantityToDeliver, &item.UnitPrice); err != nil {
			return Delivery{}, err
		}
		d.Items = append(d.Items, item)
	}
	return d, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, d Delivery) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_orders (number, status, source_location_id, destination_location_id, customer_id, note, can_edit, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, d.Number, string(d.Status), d.SourceLocationID, d.DestinationLocationID, d.CustomerID,
		d.Note, d.CanEdit, d.CreatedBy, d.CreatedAt, d.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("deliveries: insert: %w", err)
	}
	return id, nil
}

func (t *txRepository) MarkDone(ctx context.Context, id int64, doneAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE delivery_orders
		SET status = $2, can_edit = FALSE, done_at = $3, updated_at = $3
		WHERE id = $1
	`, id, string(StatusDone), doneAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) UpdateNote(ctx context.Context, id int64, note string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE delivery_orders SET note = $2, updated_at = $3 WHERE id = $1`,
		id, note, time.Now().UTC())
	return err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_order_items (delivery_id, product_id, quantity_to_deliver, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.DeliveryID, item.ProductID, item.QuantityToDeliver, item.UnitPrice).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE delivery_order_items SET product_id = $2, quantity_to_deliver = $3, unit_price = $4
		WHERE id = $1 AND delivery_id = $5
	`, item.ID, item.ProductID, item.QuantityToDeliver, item.UnitPrice, item.DeliveryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deliveries: item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteItemsNotIn(ctx context.Context, deliveryID int64, keep []int64) error {
	if len(keep) == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM delivery_order_items WHERE delivery_id = $1`, deliveryID)
		return err
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM delivery_order_items WHERE delivery_id = $1 AND NOT (id = ANY($2))`,
		deliveryID, keep)
	return err
}

func (t *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_returns (number, delivery_id, product_id, quantity, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, ret.Number, ret.DeliveryID, ret.ProductID, ret.Quantity, ret.Reason, ret.CreatedBy, ret.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) NextNumber(ctx context.Context, prefix string) (int64, error) {
	return sequence.Next(ctx, t.tx, prefix)
}

func (t *txRepository) PostingGuard(ctx context.Context, id int64) error {
	return shared.InsertPostingGuard(ctx, t.tx, "delivery_order", fmt.Sprintf("%d", id))
}

func (t *txRepository) Ledger() stock.Ledger {
	return stock.NewTxLedger(t.tx)
}

func (t *txRepository) Journal() stock.MoveJournal {
	return stock.NewTxJournal(t.tx)
}
