package tenant

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaDDL string

// Repository persists tenant records in the public schema and provisions the
// per-tenant schema on registration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create registers the tenant and provisions its schema in one transaction:
// either the record, the schema, and the seeded tables all exist afterwards,
// or none of them do.
func (r *Repository) Create(ctx context.Context, name, host string) (Tenant, error) {
	schema, err := SchemaName(name)
	if err != nil {
		return Tenant{}, err
	}
	t := Tenant{
		ID:        uuid.New(),
		Name:      name,
		Host:      host,
		Schema:    schema,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Tenant{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO tenants (id, name, host, schema_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Host, t.Schema, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, ErrDuplicateHost
		}
		return Tenant{}, fmt.Errorf("tenant: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return Tenant{}, fmt.Errorf("tenant: create schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `SET LOCAL search_path TO `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return Tenant{}, err
	}
	if _, err := tx.Exec(ctx, schemaDDL); err != nil {
		return Tenant{}, fmt.Errorf("tenant: provision schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// GetByHost resolves a tenant by request hostname.
func (r *Repository) GetByHost(ctx context.Context, host string) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, host, schema_name, created_at FROM tenants WHERE host = $1`, host).
		Scan(&t.ID, &t.Name, &t.Host, &t.Schema, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	return t, err
}

// Count returns the number of registered tenants.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n)
	return n, err
}

// List returns one page of registered tenants in registration order.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, host, schema_name, created_at FROM tenants ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Host, &t.Schema, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Schemas returns every tenant schema name, used by background jobs that
// sweep all tenants.
func (r *Repository) Schemas(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT schema_name FROM tenants ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
