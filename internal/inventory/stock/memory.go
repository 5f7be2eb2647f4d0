package stock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryLedger is a map-backed Ledger used by document workflow tests. It
// mirrors the lazy get-or-create semantics of the PostgreSQL implementation.
type InMemoryLedger struct {
	mu   sync.Mutex
	rows map[string]float64
}

// NewInMemoryLedger constructs an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{rows: make(map[string]float64)}
}

func ledgerKey(locationID string, productID int64) string {
	return fmt.Sprintf("%s:%d", locationID, productID)
}

// Get returns the current quantity, zero when no row exists.
func (l *InMemoryLedger) Get(_ context.Context, locationID string, productID int64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[ledgerKey(locationID, productID)], nil
}

// Post adds delta and returns the new quantity.
func (l *InMemoryLedger) Post(_ context.Context, locationID string, productID int64, delta float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(locationID, productID)
	l.rows[key] += delta
	return l.rows[key], nil
}

// Set overwrites the quantity.
func (l *InMemoryLedger) Set(_ context.Context, locationID string, productID int64, qty float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[ledgerKey(locationID, productID)] = qty
	return qty, nil
}

// InMemoryJournal collects moves in order for assertions.
type InMemoryJournal struct {
	mu    sync.Mutex
	next  int64
	Moves []Move
}

// NewInMemoryJournal constructs an empty journal.
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{}
}

// Record appends the move, assigning a sequential number per the real format.
func (j *InMemoryJournal) Record(_ context.Context, m Move) (Move, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.next++
	m.ID = j.next
	m.Number = fmt.Sprintf("MOV/%s/%06d", m.Type, j.next)
	if m.MovedAt.IsZero() {
		m.MovedAt = time.Now().UTC()
	}
	j.Moves = append(j.Moves, m)
	return m, nil
}
