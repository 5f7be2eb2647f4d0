// Package sequence assigns per-prefix sequential document numbers.
//
// Every document type draws its numbers from the tenant's document_sequences
// table, keyed by a location-code prefix (for example WH01ADJ or MOV/IN).
// Reservation happens inside the caller's transaction: the upsert takes a row
// lock on the prefix, so two concurrent inserts sharing a prefix serialize
// instead of computing the same next number.
package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Next reserves the next number for prefix within the given transaction.
func Next(ctx context.Context, tx pgx.Tx, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("sequence: prefix required")
	}
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, last_value)
		VALUES ($1, 1)
		ON CONFLICT (prefix)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value
	`, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sequence: reserve %s: %w", prefix, err)
	}
	return n, nil
}

// Format renders a document number as prefix plus a zero-padded counter.
// Format("WH01ADJ", 5, 1) == "WH01ADJ00001".
func Format(prefix string, width int, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// MoveNumber renders a stock move number, e.g. MOV/IN/000001.
func MoveNumber(moveType string, n int64) string {
	return fmt.Sprintf("MOV/%s/%06d", moveType, n)
}
