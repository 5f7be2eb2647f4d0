package locations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
)

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	ExistsCode(ctx context.Context, code string) (bool, error)
	ExistsName(ctx context.Context, name string) (bool, error)
	ExistsID(ctx context.Context, id string) (bool, error)
	NextSequence(ctx context.Context, code string) (int64, error)
	Insert(ctx context.Context, loc Location) error
	SetHidden(ctx context.Context, id string, hidden bool) error
	CountVisible(ctx context.Context) (int, error)
	MultiLocationActive(ctx context.Context) (bool, error)
	SetMultiLocation(ctx context.Context, activated bool) error
	Get(ctx context.Context, id string) (Location, error)
}

// Repository persists locations in the tenant schema.
type Repository interface {
	WithTx(ctx context.Context, schema string, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, schema, id string) (Location, error)
	ListActive(ctx context.Context, schema string) ([]Location, error)
	MultiLocationActive(ctx context.Context, schema string) (bool, error)
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

func (r *repository) Get(ctx context.Context, schema, id string) (Location, error) {
	var loc Location
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		loc, err = (&txRepository{tx: tx}).Get(ctx, id)
		return err
	})
	return loc, err
}

func (r *repository) ListActive(ctx context.Context, schema string) ([]Location, error) {
	var out []Location
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectColumns+`
			FROM locations
			WHERE hidden = FALSE AND code NOT IN ($1, $2)
			ORDER BY id
		`, SentinelSupplierCode, SentinelCustomerCode)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			loc, err := scanLocation(rows)
			if err != nil {
				return err
			}
			out = append(out, loc)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repository) MultiLocationActive(ctx context.Context, schema string) (bool, error) {
	var active bool
	err := db.WithTenantTx(ctx, r.pool, schema, func(tx pgx.Tx) error {
		var err error
		active, err = (&txRepository{tx: tx}).MultiLocationActive(ctx)
		return err
	})
	return active, err
}

const selectColumns = `SELECT id, code, sequence_no, name, location_type, manager_id, keeper_id, hidden, created_by, created_at, updated_at `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (Location, error) {
	var loc Location
	err := row.Scan(&loc.ID, &loc.Code, &loc.SequenceNo, &loc.Name, &loc.Type,
		&loc.ManagerID, &loc.KeeperID, &loc.Hidden, &loc.CreatedBy, &loc.CreatedAt, &loc.UpdatedAt)
	return loc, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) ExistsCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM locations WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (t *txRepository) ExistsName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM locations WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (t *txRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM locations WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// NextSequence reserves the next identity sequence for a code. Scoped per
// code, as location ids are {code}{5-digit sequence}.
func (t *txRepository) NextSequence(ctx context.Context, code string) (int64, error) {
	return sequence.Next(ctx, t.tx, "LOC:"+code)
}

func (t *txRepository) Insert(ctx context.Context, loc Location) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO locations (id, code, sequence_no, name, location_type, manager_id, keeper_id, hidden, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, loc.ID, loc.Code, loc.SequenceNo, loc.Name, string(loc.Type), loc.ManagerID, loc.KeeperID,
		loc.Hidden, loc.CreatedBy, loc.CreatedAt, loc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("locations: insert %s: %w", loc.ID, err)
	}
	return nil
}

func (t *txRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE locations SET hidden = $2, updated_at = $3 WHERE id = $1`,
		id, hidden, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountVisible counts non-hidden locations outside the sentinel codes.
func (t *txRepository) CountVisible(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM locations
		WHERE hidden = FALSE AND code NOT IN ($1, $2)
	`, SentinelSupplierCode, SentinelCustomerCode).Scan(&n)
	return n, err
}

func (t *txRepository) MultiLocationActive(ctx context.Context) (bool, error) {
	var active bool
	err := t.tx.QueryRow(ctx, `SELECT is_activated FROM multi_location WHERE singleton = TRUE`).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (t *txRepository) SetMultiLocation(ctx context.Context, activated bool) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO multi_location (singleton, is_activated) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET is_activated = $1
	`, activated)
	return err
}

func (t *txRepository) Get(ctx context.Context, id string) (Location, error) {
	loc, err := scanLocation(t.tx.QueryRow(ctx, selectColumns+`FROM locations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return loc, err
}
