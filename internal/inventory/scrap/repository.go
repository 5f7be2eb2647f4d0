package scrap

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
	Get(ctx context.Context, id int64) (Scrap, error)
	Insert(ctx context.Context, s Scrap) (int64, error)
	MarkDone(ctx context.Context, id int64, doneAt time.Time) error
	UpdateNote(ctx context.Context, id int64, note string) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItemsNotIn(ctx context.Context, scrapID int64, keep []int64) error
	NextNumber(ctx context.Context, prefix string) (int64, error)
	PostingGuard(ctx context.Context, id int64) error
	Ledger() stock.Ledger
	Journal() stock.MoveJournal
}

// Repository persists scrap documents in the tenant schema.
type Repository interface {
	WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, schema string, id int64) (Scrap, error)
	List(ctx context.Context, schema string, status *Status) ([]Scrap, error)
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

func (r *repository) GetByID(ctx context.Context, schema string, id int64) (Scrap, error) {
	var s Scrap
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		s, err = (&txRepository{tx: tx}).Get(ctx, id)
		return err
	})
	return s, err
}

func (r *repository) List(ctx context.Context, schema string, status *Status) ([]Scrap, error) {
	var out []Scrap
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		query := `SELECT id, number, status, warehouse_location_id, note, can_edit, created_by, created_at, updated_at, done_at
			FROM scraps`
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
			var s Scrap
			if err := rows.Scan(&s.ID, &s.Number, &s.Status, &s.WarehouseLocationID, &s.Note,
				&s.CanEdit, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.DoneAt); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Get(ctx context.Context, id int64) (Scrap, error) {
	var s Scrap
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, status, warehouse_location_id, note, can_edit, created_by, created_at, updated_at, done_at
		FROM scraps WHERE id = $1
	`, id).Scan(&s.ID, &s.Number, &s.Status, &s.WarehouseLocationID, &s.Note,
		&s.CanEdit, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.DoneAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Scrap{}, ErrNotFound
	}
	if err != nil {
		return Scrap{}, err
	}
	rows, err := t.tx.Query(ctx,
		`SELECT id, scrap_id, product_id, quantity FROM scrap_items WHERE scrap_id = $1 ORDER BY id`, id)
	if err != nil {
		return Scrap{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ScrapID, &item.ProductID, &item.Quantity); err != nil {
			return Scrap{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, s Scrap) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO scraps (number, status, warehouse_location_id, note, can_edit, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, s.Number, string(s.Status), s.WarehouseLocationID, s.Note, s.CanEdit, s.CreatedBy, s.CreatedAt, s.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("scrap: insert: %w", err)
	}
	return id, nil
}

func (t *txRepository) MarkDone(ctx context.Context, id int64, doneAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE scraps
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
		`UPDATE scraps SET note = $2, updated_at = $3 WHERE id = $1`,
		id, note, time.Now().UTC())
	return err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO scrap_items (scrap_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id
	`, item.ScrapID, item.ProductID, item.Quantity).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE scrap_items SET product_id = $2, quantity = $3
		WHERE id = $1 AND scrap_id = $4
	`, item.ID, item.ProductID, item.Quantity, item.ScrapID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scrap: item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteItemsNotIn(ctx context.Context, scrapID int64, keep []int64) error {
	if len(keep) == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM scrap_items WHERE scrap_id = $1`, scrapID)
		return err
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM scrap_items WHERE scrap_id = $1 AND NOT (id = ANY($2))`,
		scrapID, keep)
	return err
}

func (t *txRepository) NextNumber(ctx context.Context, prefix string) (int64, error) {
	return sequence.Next(ctx, t.tx, prefix)
}

func (t *txRepository) PostingGuard(ctx context.Context, id int64) error {
	return shared.InsertPostingGuard(ctx, t.tx, "scrap", fmt.Sprintf("%d", id))
}

func (t *txRepository) Ledger() stock.Ledger {
	return stock.NewTxLedger(t.tx)
}

func (t *txRepository) Journal() stock.MoveJournal {
	return stock.NewTxJournal(t.tx)
}
