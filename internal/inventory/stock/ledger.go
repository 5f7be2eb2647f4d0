package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/sequence"
)

// txLedger implements Ledger against the caller's open transaction, so a
// document's header update, item writes and ledger mutation commit together.
type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger binds a Ledger to an open transaction.
func NewTxLedger(tx pgx.Tx) Ledger {
	return &txLedger{tx: tx}
}

func (l *txLedger) Get(ctx context.Context, locationID string, productID int64) (float64, error) {
	var qty float64
	err := l.tx.QueryRow(ctx,
		`SELECT quantity FROM location_stock WHERE location_id = $1 AND product_id = $2`,
		locationID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stock: get %s/%d: %w", locationID, productID, err)
	}
	return qty, nil
}

// ensureRow lazily creates the ledger row with quantity zero.
func (l *txLedger) ensureRow(ctx context.Context, locationID string, productID int64) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO location_stock (location_id, product_id, quantity, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (location_id, product_id) DO NOTHING
	`, locationID, productID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("stock: ensure row %s/%d: %w", locationID, productID, err)
	}
	return nil
}

func (l *txLedger) Post(ctx context.Context, locationID string, productID int64, delta float64) (float64, error) {
	if err := l.ensureRow(ctx, locationID, productID); err != nil {
		return 0, err
	}
	// The UPDATE takes the row lock; concurrent posts to the same pair queue
	// behind it instead of losing an update.
	var qty float64
	err := l.tx.QueryRow(ctx, `
		UPDATE location_stock
		SET quantity = quantity + $3, updated_at = $4
		WHERE location_id = $1 AND product_id = $2
		RETURNING quantity
	`, locationID, productID, delta, time.Now().UTC()).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("stock: post %s/%d: %w", locationID, productID, err)
	}
	return qty, nil
}

func (l *txLedger) Set(ctx context.Context, locationID string, productID int64, qty float64) (float64, error) {
	if err := l.ensureRow(ctx, locationID, productID); err != nil {
		return 0, err
	}
	var newQty float64
	err := l.tx.QueryRow(ctx, `
		UPDATE location_stock
		SET quantity = $3, updated_at = $4
		WHERE location_id = $1 AND product_id = $2
		RETURNING quantity
	`, locationID, productID, qty, time.Now().UTC()).Scan(&newQty)
	if err != nil {
		return 0, fmt.Errorf("stock: set %s/%d: %w", locationID, productID, err)
	}
	return newQty, nil
}

// txJournal implements MoveJournal within the caller's transaction.
type txJournal struct {
	tx pgx.Tx
}

// NewTxJournal binds a MoveJournal to an open transaction.
func NewTxJournal(tx pgx.Tx) MoveJournal {
	return &txJournal{tx: tx}
}

func (j *txJournal) Record(ctx context.Context, m Move) (Move, error) {
	n, err := sequence.Next(ctx, j.tx, "MOV/"+string(m.Type))
	if err != nil {
		return Move{}, err
	}
	m.Number = sequence.MoveNumber(string(m.Type), n)
	if m.MovedAt.IsZero() {
		m.MovedAt = time.Now().UTC()
	}
	err = j.tx.QueryRow(ctx, `
		INSERT INTO stock_moves (number, move_type, product_id, qty, source_location_id, destination_location_id, reference, moved_by, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, m.Number, string(m.Type), m.ProductID, m.Qty, m.SourceLocationID, m.DestinationLocationID, m.Reference, m.MovedBy, m.MovedAt).Scan(&m.ID)
	if err != nil {
		return Move{}, fmt.Errorf("stock: record move %s: %w", m.Number, err)
	}
	return m, nil
}
