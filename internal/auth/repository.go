package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists users in the tenant schema.
type Repository interface {
	Insert(ctx context.Context, schema string, u User) (int64, error)
	GetByEmail(ctx context.Context, schema, email string) (User, error)
	Get(ctx context.Context, schema string, id int64) (User, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, schema string, u User) (int64, error) {
	var id int64
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO users (email, name, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt).Scan(&id)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrDuplicateEmail
	}
	return id, err
}

const selectColumns = `SELECT id, email, name, password_hash, created_at, updated_at `

func (r *repository) GetByEmail(ctx context.Context, schema, email string) (User, error) {
	var u User
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		return scanUser(tx.QueryRow(ctx, selectColumns+`FROM users WHERE email = $1`, email), &u)
	})
	return u, err
}

func (r *repository) Get(ctx context.Context, schema string, id int64) (User, error) {
	var u User
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		return scanUser(tx.QueryRow(ctx, selectColumns+`FROM users WHERE id = $1`, id), &u)
	})
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *User) error {
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}
