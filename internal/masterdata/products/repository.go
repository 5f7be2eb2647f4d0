package products

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists products in the tenant schema.
type Repository interface {
	List(ctx context.Context, schema string, includeHidden bool) ([]Product, error)
	Get(ctx context.Context, schema string, id int64) (Product, error)
	Create(ctx context.Context, schema string, p Product) (Product, error)
	SetHidden(ctx context.Context, schema string, id int64, hidden bool) error
	VisibleIDs(ctx context.Context, schema string, ids []int64) (map[int64]bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, schema string, includeHidden bool) ([]Product, error) {
	var out []Product
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		query := `SELECT id, code, name, uom, price, hidden, created_at, updated_at FROM products`
		if !includeHidden {
			query += ` WHERE hidden = FALSE`
		}
		query += ` ORDER BY code`
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.UOM, &p.Price, &p.Hidden, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repository) Get(ctx context.Context, schema string, id int64) (Product, error) {
	var p Product
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT id, code, name, uom, price, hidden, created_at, updated_at FROM products WHERE id = $1`, id).
			Scan(&p.ID, &p.Code, &p.Name, &p.UOM, &p.Price, &p.Hidden, &p.CreatedAt, &p.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return p, err
}

func (r *repository) Create(ctx context.Context, schema string, p Product) (Product, error) {
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		err := tx.QueryRow(ctx, `
			INSERT INTO products (code, name, uom, price, hidden, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, p.Code, p.Name, p.UOM, p.Price, p.Hidden, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateCode
			}
		}
		return err
	})
	return p, err
}

func (r *repository) SetHidden(ctx context.Context, schema string, id int64, hidden bool) error {
	return db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET hidden = $2, updated_at = $3 WHERE id = $1`,
			id, hidden, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repository) VisibleIDs(ctx context.Context, schema string, ids []int64) (map[int64]bool, error) {
	visible := make(map[int64]bool, len(ids))
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM products WHERE hidden = FALSE AND id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			visible[id] = true
		}
		return rows.Err()
	})
	return visible, err
}
