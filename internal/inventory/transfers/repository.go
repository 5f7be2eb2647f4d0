package transfers

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
	Get(ctx context.Context, id int64) (Transfer, error)
	Insert(ctx context.Context, t Transfer) (int64, error)
	MarkStatus(ctx context.Context, id int64, status Status, at time.Time) error
	UpdateNote(ctx context.Context, id int64, note string) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItemsNotIn(ctx context.Context, transferID int64, keep []int64) error
	NextNumber(ctx context.Context, prefix string) (int64, error)
	PostingGuard(ctx context.Context, id int64) error
	Ledger() stock.Ledger
	Journal() stock.MoveJournal
}

// Repository persists internal transfers in the tenant schema.
type Repository interface {
	WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, schema string, id int64) (Transfer, error)
	List(ctx context.Context, schema string, status *Status) ([]Transfer, error)
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

func (r *repository) GetByID(ctx context.Context, schema string, id int64) (Transfer, error) {
	var t Transfer
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		t, err = (&txRepository{tx: tx}).Get(ctx, id)
		return err
	})
	return t, err
}

func (r *repository) List(ctx context.Context, schema string, status *Status) ([]Transfer, error) {
	var out []Transfer
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		query := `SELECT id, number, status, source_location_id, destination_location_id, note, can_edit, created_by, created_at, updated_at, validated_at
			FROM internal_transfers`
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
			var t Transfer
			if err := rows.Scan(&t.ID, &t.Number, &t.Status, &t.SourceLocationID, &t.DestinationLocationID,
				&t.Note, &t.CanEdit, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.ValidatedAt); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Get(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, status, source_location_id, destination_location_id, note, can_edit, created_by, created_at, updated_at, validated_at
		FROM internal_transfers WHERE id = $1
	`, id).Scan(&tr.ID, &tr.Number, &tr.Status, &tr.SourceLocationID, &tr.DestinationLocationID,
		&tr.Note, &tr.CanEdit, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt, &tr.ValidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	if err != nil {
		return Transfer{}, err
	}
	rows, err := t.tx.Query(ctx,
		`SELECT id, transfer_id, product_id, quantity_requested FROM internal_transfer_items WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.QuantityRequested); err != nil {
			return Transfer{}, err
		}
		tr.Items = append(tr.Items, item)
	}
	return tr, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO internal_transfers (number, status, source_location_id, destination_location_id, note, can_edit, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, tr.Number, string(tr.Status), tr.SourceLocationID, tr.DestinationLocationID, tr.Note,
		tr.CanEdit, tr.CreatedBy, tr.CreatedAt, tr.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("transfers: insert: %w", err)
	}
	return id, nil
}

func (t *txRepository) MarkStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var validatedAt *time.Time
	if status == StatusValidated {
		validatedAt = &at
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE internal_transfers
		SET status = $2, can_edit = FALSE, validated_at = COALESCE($3, validated_at), updated_at = $4
		WHERE id = $1
	`, id, string(status), validatedAt, at)
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
		`UPDATE internal_transfers SET note = $2, updated_at = $3 WHERE id = $1`,
		id, note, time.Now().UTC())
	return err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO internal_transfer_items (transfer_id, product_id, quantity_requested)
		VALUES ($1, $2, $3)
		RETURNING id
	`, item.TransferID, item.ProductID, item.QuantityRequested).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE internal_transfer_items SET product_id = $2, quantity_requested = $3
		WHERE id = $1 AND transfer_id = $4
	`, item.ID, item.ProductID, item.QuantityRequested, item.TransferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfers: item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteItemsNotIn(ctx context.Context, transferID int64, keep []int64) error {
	if len(keep) == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM internal_transfer_items WHERE transfer_id = $1`, transferID)
		return err
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM internal_transfer_items WHERE transfer_id = $1 AND NOT (id = ANY($2))`,
		transferID, keep)
	return err
}

func (t *txRepository) NextNumber(ctx context.Context, prefix string) (int64, error) {
	return sequence.Next(ctx, t.tx, prefix)
}

func (t *txRepository) PostingGuard(ctx context.Context, id int64) error {
	return shared.InsertPostingGuard(ctx, t.tx, "internal_transfer", fmt.Sprintf("%d", id))
}

func (t *txRepository) Ledger() stock.Ledger {
	return stock.NewTxLedger(t.tx)
}

func (t *txRepository) Journal() stock.MoveJournal {
	return stock.NewTxJournal(t.tx)
}
