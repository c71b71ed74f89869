package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// TxRepository exposes the row-locked ledger operations available inside a
// transaction. Callers compose it into their own transactional repositories.
type TxRepository interface {
	// GetLedgerForUpdate loads the entry and holds an exclusive row lock until
	// the surrounding transaction ends.
	GetLedgerForUpdate(ctx context.Context, productID string) (LedgerEntry, error)
	InsertLedger(ctx context.Context, entry LedgerEntry) error
	UpdateLedger(ctx context.Context, entry LedgerEntry) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// ReservationObserver receives reservation outcomes, typically for metrics.
type ReservationObserver interface {
	ObserveReservation(result string)
}

// Manager implements reserve, fulfill and release against a locked ledger row.
// Every method expects to run inside the caller's transaction.
type Manager struct {
	clock    shared.Clock
	logger   *slog.Logger
	observer ReservationObserver
}

// NewManager builds a Manager. A nil clock falls back to the system clock.
func NewManager(clock shared.Clock, logger *slog.Logger, observer ReservationObserver) *Manager {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{clock: clock, logger: logger, observer: observer}
}

// Reserve holds qty units when available. It returns false, without writing,
// when available stock is short.
func (m *Manager) Reserve(ctx context.Context, tx TxRepository, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return false, err
	}
	if entry.Available() < qty {
		m.observe("rejected")
		m.logger.Info("reservation rejected",
			slog.String("product_id", productID),
			slog.Int("requested", qty),
			slog.Int("available", entry.Available()),
		)
		return false, nil
	}
	entry.ReservedStock += qty
	if _, err := m.save(ctx, tx, entry, false); err != nil {
		return false, err
	}
	m.observe("reserved")
	return true, nil
}

// Fulfill deducts qty from both current and reserved stock. The caller appends
// the matching OUT movement.
func (m *Manager) Fulfill(ctx context.Context, tx TxRepository, productID string, qty int) (LedgerEntry, error) {
	if qty <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if qty > entry.ReservedStock {
		return LedgerEntry{}, fmt.Errorf("%w: product %s approved %d reserved %d", ErrInsufficientReserved, productID, qty, entry.ReservedStock)
	}
	entry.CurrentStock -= qty
	entry.ReservedStock -= qty
	if entry, err = m.save(ctx, tx, entry, true); err != nil {
		return LedgerEntry{}, err
	}
	m.observe("fulfilled")
	return entry, nil
}

// Release returns qty reserved units to available stock, floored at zero so a
// retried release never drives the reservation negative.
func (m *Manager) Release(ctx context.Context, tx TxRepository, productID string, qty int) (LedgerEntry, error) {
	if qty <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if entry.ReservedStock < qty {
		m.logger.Warn("release exceeds reserved stock",
			slog.String("product_id", productID),
			slog.Int("requested", qty),
			slog.Int("reserved", entry.ReservedStock),
		)
	}
	entry.ReservedStock = max(0, entry.ReservedStock-qty)
	if entry, err = m.save(ctx, tx, entry, false); err != nil {
		return LedgerEntry{}, err
	}
	m.observe("released")
	return entry, nil
}

// Receive adds inbound stock and re-derives the status.
func (m *Manager) Receive(ctx context.Context, tx TxRepository, productID string, qty int) (LedgerEntry, error) {
	if qty <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry.CurrentStock += qty
	if entry, err = m.save(ctx, tx, entry, true); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// MarkIncoming flags the entry as awaiting a confirmed delivery.
func (m *Manager) MarkIncoming(ctx context.Context, tx TxRepository, productID string) (LedgerEntry, error) {
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if entry.Status == StatusInvalid || entry.Status == StatusIncoming {
		return entry, nil
	}
	entry.Status = StatusIncoming
	if entry, err = m.save(ctx, tx, entry, false); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// Refresh re-derives the status, clearing INCOMING. Callers check that no
// other delivery is still inbound first.
func (m *Manager) Refresh(ctx context.Context, tx TxRepository, productID string) (LedgerEntry, error) {
	entry, err := m.lock(ctx, tx, productID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if entry, err = m.save(ctx, tx, entry, true); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// EnsureEntry returns the product's entry, creating an empty one with the
// given status when absent. created reports whether an insert happened.
func (m *Manager) EnsureEntry(ctx context.Context, tx TxRepository, productID string, status LedgerStatus) (LedgerEntry, bool, error) {
	entry, err := tx.GetLedgerForUpdate(ctx, productID)
	if err == nil {
		return entry, false, nil
	}
	if !isNotFound(err) {
		return LedgerEntry{}, false, err
	}
	entry = LedgerEntry{
		SKU:        SKUFor(productID),
		ProductID:  productID,
		Status:     status,
		LastUpdate: m.clock.Now(),
	}
	if entry.Status == "" {
		entry.Status = DeriveStatus(entry)
	}
	if err := tx.InsertLedger(ctx, entry); err != nil {
		return LedgerEntry{}, false, err
	}
	return entry, true, nil
}

// AppendMovement validates and appends an immutable movement row.
func (m *Manager) AppendMovement(ctx context.Context, tx TxRepository, mv Movement) (Movement, error) {
	if mv.CreatedBy == "" {
		mv.CreatedBy = shared.ActorFromContext(ctx)
	}
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = m.clock.Now()
	}
	if err := mv.Validate(); err != nil {
		return Movement{}, err
	}
	id, err := tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, err
	}
	mv.ID = id
	return mv, nil
}

func (m *Manager) lock(ctx context.Context, tx TxRepository, productID string) (LedgerEntry, error) {
	if productID == "" {
		return LedgerEntry{}, fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	entry, err := tx.GetLedgerForUpdate(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return LedgerEntry{}, fmt.Errorf("%w: %s", ErrLedgerNotFound, productID)
		}
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (m *Manager) save(ctx context.Context, tx TxRepository, entry LedgerEntry, derive bool) (LedgerEntry, error) {
	if derive {
		entry.Status = DeriveStatus(entry)
	}
	entry.LastUpdate = m.clock.Now()
	if err := entry.CheckInvariant(); err != nil {
		return LedgerEntry{}, err
	}
	if err := tx.UpdateLedger(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

func (m *Manager) observe(result string) {
	if m.observer != nil {
		m.observer.ObserveReservation(result)
	}
}
