package receipts

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
	Get(ctx context.Context, id int64) (Receipt, error)
	Insert(ctx context.Context, rc Receipt) (int64, error)
	MarkValidated(ctx context.Context, id int64, at time.Time) error
	UpdateNote(ctx context.Context, id int64, note string) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItemsNotIn(ctx context.Context, receiptID int64, keep []int64) error
	// BackOrderID returns the id of the back order derived from the given
	// receipt, or zero when none exists.
	BackOrderID(ctx context.Context, receiptID int64) (int64, error)
	SetExpectedToReceived(ctx context.Context, receiptID int64) error
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	NextNumber(ctx context.Context, prefix string) (int64, error)
	PostingGuard(ctx context.Context, id int64) error
	Ledger() stock.Ledger
	Journal() stock.MoveJournal
}

// Repository persists receipts in the tenant schema.
type Repository interface {
	WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, schema string, id int64) (Receipt, error)
	List(ctx context.Context, schema string, kind *Kind, status *Status) ([]Receipt, error)
	ListReturns(ctx context.Context, schema string, receiptID int64) ([]Return, error)
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

func (r *repository) GetByID(ctx context.Context, schema string, id int64) (Receipt, error) {
	var rc Receipt
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		rc, err = (&txRepository{tx: tx}).Get(ctx, id)
		return err
	})
	return rc, err
}

func (r *repository) List(ctx context.Context, schema string, kind *Kind, status *Status) ([]Receipt, error) {
	var out []Receipt
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		query := `SELECT id, number, kind, status, source_location_id, destination_location_id, supplier_id, receipt_type,
				purchase_order_id, backorder_of, note, can_edit, created_by, created_at, updated_at, validated_at
			FROM receipts WHERE 1=1`
		args := []any{}
		if kind != nil {
			args = append(args, string(*kind))
			query += fmt.Sprintf(` AND kind = $%d`, len(args))
		}
		if status != nil {
			args = append(args, string(*status))
			query += fmt.Sprintf(` AND status = $%d`, len(args))
		}
		query += ` ORDER BY id DESC`
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rc Receipt
			if err := rows.Scan(&rc.ID, &rc.Number, &rc.Kind, &rc.Status, &rc.SourceLocationID, &rc.DestinationLocationID,
				&rc.SupplierID, &rc.ReceiptType, &rc.PurchaseOrderID, &rc.BackOrderOf, &rc.Note,
				&rc.CanEdit, &rc.CreatedBy, &rc.CreatedAt, &rc.UpdatedAt, &rc.ValidatedAt); err != nil {
				return err
			}
			out = append(out, rc)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repository) ListReturns(ctx context.Context, schema string, receiptID int64) ([]Return, error) {
	var out []Return
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, number, receipt_id, product_id, quantity, reason, created_by, created_at
			FROM receipt_returns WHERE receipt_id = $1 ORDER BY id
		`, receiptID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ret Return
			if err := rows.Scan(&ret.ID, &ret.Number, &ret.ReceiptID, &ret.ProductID,
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

func (t *txRepository) Get(ctx context.Context, id int64) (Receipt, error) {
	var rc Receipt
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, kind, status, source_location_id, destination_location_id, supplier_id, receipt_type,
			purchase_order_id, backorder_of, note, can_edit, created_by, created_at, updated_at, validated_at
		FROM receipts WHERE id = $1
	`, id).Scan(&rc.ID, &rc.Number, &rc.Kind, &rc.Status, &rc.SourceLocationID, &rc.DestinationLocationID,
		&rc.SupplierID, &rc.ReceiptType, &rc.PurchaseOrderID, &rc.BackOrderOf, &rc.Note,
		&rc.CanEdit, &rc.CreatedBy, &rc.CreatedAt, &rc.UpdatedAt, &rc.ValidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	rows, err := t.tx.Query(ctx,
		`SELECT id, receipt_id, product_id, expected_quantity, quantity_received FROM receipt_items WHERE receipt_id = $1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.ProductID, &item.ExpectedQuantity, &item.QuantityReceived); err != nil {
			return Receipt{}, err
		}
		rc.Items = append(rc.Items, item)
	}
	return rc, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receipts (number, kind, status, source_location_id, destination_location_id, supplier_id, receipt_type,
			purchase_order_id, backorder_of, note, can_edit, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, rc.Number, string(rc.Kind), string(rc.Status), rc.SourceLocationID, rc.DestinationLocationID,
		rc.SupplierID, rc.ReceiptType, rc.PurchaseOrderID, rc.BackOrderOf, rc.Note,
		rc.CanEdit, rc.CreatedBy, rc.CreatedAt, rc.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("receipts: insert: %w", err)
	}
	return id, nil
}

func (t *txRepository) MarkValidated(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receipts
		SET status = $2, can_edit = FALSE, validated_at = $3, updated_at = $3
		WHERE id = $1
	`, id, string(StatusValidated), at)
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
		`UPDATE receipts SET note = $2, updated_at = $3 WHERE id = $1`,
		id, note, time.Now().UTC())
	return err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receipt_items (receipt_id, product_id, expected_quantity, quantity_received)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.ReceiptID, item.ProductID, item.ExpectedQuantity, item.QuantityReceived).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receipt_items SET product_id = $2, expected_quantity = $3, quantity_received = $4
		WHERE id = $1 AND receipt_id = $5
	`, item.ID, item.ProductID, item.ExpectedQuantity, item.QuantityReceived, item.ReceiptID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipts: item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteItemsNotIn(ctx context.Context, receiptID int64, keep []int64) error {
	if len(keep) == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM receipt_items WHERE receipt_id = $1`, receiptID)
		return err
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM receipt_items WHERE receipt_id = $1 AND NOT (id = ANY($2))`,
		receiptID, keep)
	return err
}

func (t *txRepository) BackOrderID(ctx context.Context, receiptID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`SELECT id FROM receipts WHERE backorder_of = $1`, receiptID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (t *txRepository) SetExpectedToReceived(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE receipt_items SET expected_quantity = quantity_received WHERE receipt_id = $1`,
		receiptID)
	return err
}

func (t *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receipt_returns (number, receipt_id, product_id, quantity, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, ret.Number, ret.ReceiptID, ret.ProductID, ret.Quantity, ret.Reason, ret.CreatedBy, ret.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) NextNumber(ctx context.Context, prefix string) (int64, error) {
	return sequence.Next(ctx, t.tx, prefix)
}

func (t *txRepository) PostingGuard(ctx context.Context, id int64) error {
	return shared.InsertPostingGuard(ctx, t.tx, "receipt", fmt.Sprintf("%d", id))
}

func (t *txRepository) Ledger() stock.Ledger {
	return stock.NewTxLedger(t.tx)
}

func (t *txRepository) Journal() stock.MoveJournal {
	return stock.NewTxJournal(t.tx)
}
