// Package inventorytest provides an in-memory, transactional stock ledger for
// tests of inventory and of the order flows composed on top of it.
package inventorytest

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

// Ledger mimics the Postgres ledger: GetLedgerForUpdate blocks on a per-product
// lock held until the transaction commits or rolls back, and writes become
// visible only on commit.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]inventory.LedgerEntry
	movements []inventory.Movement
	locks     map[string]*sync.Mutex
	nextID    int64
}

// NewLedger returns an empty ledger seeded with entries.
func NewLedger(entries ...inventory.LedgerEntry) *Ledger {
	l := &Ledger{
		entries: make(map[string]inventory.LedgerEntry),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, e := range entries {
		l.entries[e.ProductID] = e
	}
	return l
}

// Entry returns the committed entry for productID.
func (l *Ledger) Entry(productID string) (inventory.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[productID]
	return e, ok
}

// Movements returns committed movements in append order.
func (l *Ledger) Movements() []inventory.Movement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]inventory.Movement(nil), l.movements...)
}

// Begin opens a transaction.
func (l *Ledger) Begin() *Txn {
	return &Txn{ledger: l, held: map[string]*sync.Mutex{}, writes: map[string]inventory.LedgerEntry{}}
}

// WithTx implements inventory.RepositoryPort.WithTx.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	txn := l.Begin()
	if err := fn(ctx, txn); err != nil {
		txn.Rollback()
		return err
	}
	txn.Commit()
	return nil
}

// GetLedger implements inventory.RepositoryPort.
func (l *Ledger) GetLedger(_ context.Context, productID string) (inventory.LedgerEntry, error) {
	if e, ok := l.Entry(productID); ok {
		return e, nil
	}
	return inventory.LedgerEntry{}, inventory.ErrLedgerNotFound
}

// ListLowStock implements inventory.RepositoryPort.
func (l *Ledger) ListLowStock(context.Context) ([]inventory.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []inventory.LedgerEntry
	for _, e := range l.entries {
		if e.Status == inventory.StatusLowStock {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// ListMovements implements inventory.RepositoryPort.
func (l *Ledger) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched []inventory.Movement
	for i := len(l.movements) - 1; i >= 0; i-- {
		if l.movements[i].ProductID == filter.ProductID {
			matched = append(matched, l.movements[i])
		}
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (l *Ledger) rowLock(productID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[productID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[productID] = m
	}
	return m
}

// Txn is a single transaction against Ledger. It implements
// inventory.TxRepository.
type Txn struct {
	ledger    *Ledger
	held      map[string]*sync.Mutex
	writes    map[string]inventory.LedgerEntry
	movements []inventory.Movement
	done      bool
}

// GetLedgerForUpdate blocks until the product row lock is free.
func (t *Txn) GetLedgerForUpdate(_ context.Context, productID string) (inventory.LedgerEntry, error) {
	if _, ok := t.held[productID]; !ok {
		lock := t.ledger.rowLock(productID)
		lock.Lock()
		t.held[productID] = lock
	}
	if e, ok := t.writes[productID]; ok {
		return e, nil
	}
	e, ok := t.ledger.Entry(productID)
	if !ok {
		return inventory.LedgerEntry{}, inventory.ErrLedgerNotFound
	}
	return e, nil
}

// InsertLedger stages a new entry.
func (t *Txn) InsertLedger(_ context.Context, entry inventory.LedgerEntry) error {
	if _, ok := t.writes[entry.ProductID]; ok {
		return inventory.ErrLedgerExists
	}
	if _, ok := t.ledger.Entry(entry.ProductID); ok {
		return inventory.ErrLedgerExists
	}
	t.writes[entry.ProductID] = entry
	return nil
}

// UpdateLedger stages an update of a locked entry.
func (t *Txn) UpdateLedger(_ context.Context, entry inventory.LedgerEntry) error {
	if _, ok := t.writes[entry.ProductID]; !ok {
		if _, ok := t.ledger.Entry(entry.ProductID); !ok {
			return inventory.ErrLedgerNotFound
		}
	}
	t.writes[entry.ProductID] = entry
	return nil
}

// InsertMovement stages a movement.
func (t *Txn) InsertMovement(_ context.Context, m inventory.Movement) (int64, error) {
	t.movements = append(t.movements, m)
	return int64(len(t.movements)), nil
}

// Commit publishes staged writes and releases row locks.
func (t *Txn) Commit() {
	if t.done {
		return
	}
	t.ledger.mu.Lock()
	for id, e := range t.writes {
		t.ledger.entries[id] = e
	}
	for _, m := range t.movements {
		t.ledger.nextID++
		m.ID = t.ledger.nextID
		t.ledger.movements = append(t.ledger.movements, m)
	}
	t.ledger.mu.Unlock()
	t.release()
}

// Rollback discards staged writes and releases row locks.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.release()
}

func (t *Txn) release() {
	t.done = true
	for _, lock := range t.held {
		lock.Unlock()
	}
	t.held = nil
}
