package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLedger(ctx context.Context, productID string) (LedgerEntry, error)
	ListLowStock(ctx context.Context) ([]LedgerEntry, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs Manager operations in their own transactions for callers that
// do not already hold one.
type Service struct {
	repo    RepositoryPort
	manager *Manager
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, manager *Manager, audit AuditPort, logger *slog.Logger) *Service {
	if manager == nil {
		manager = NewManager(nil, logger, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, manager: manager, audit: audit, logger: logger}
}

// Manager exposes the reservation manager for transactional composition.
func (s *Service) Manager() *Manager {
	return s.manager
}

// Reserve holds stock for productID. See Manager.Reserve.
func (s *Service) Reserve(ctx context.Context, productID string, qty int) (bool, error) {
	var ok bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ok, err = s.manager.Reserve(ctx, tx, productID, qty)
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Fulfill deducts a reservation and appends the OUT movement atomically.
func (s *Service) Fulfill(ctx context.Context, input FulfillInput) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.manager.Fulfill(ctx, tx, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}
		_, err = s.manager.AppendMovement(ctx, tx, Movement{
			ProductID:     input.ProductID,
			SKU:           entry.SKU,
			Quantity:      input.Quantity,
			Direction:     DirectionOut,
			ReferenceID:   input.ReferenceID,
			ReferenceType: input.ReferenceType,
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// Release returns reserved stock. See Manager.Release.
func (s *Service) Release(ctx context.Context, productID string, qty int) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.manager.Release(ctx, tx, productID, qty)
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// CreateEntry registers a product entering the catalog.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (LedgerEntry, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	if input.ProductID == "" {
		return LedgerEntry{}, fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	if input.SKU == "" {
		input.SKU = SKUFor(input.ProductID)
	}
	entry := LedgerEntry{
		SKU:          input.SKU,
		ProductID:    input.ProductID,
		Location:     input.Location,
		CurrentStock: input.CurrentStock,
		MinLevel:     input.MinLevel,
		LastUpdate:   s.manager.clock.Now(),
	}
	entry.Status = DeriveStatus(entry)
	if err := entry.CheckInvariant(); err != nil {
		return LedgerEntry{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLedgerForUpdate(ctx, input.ProductID); err == nil {
			return fmt.Errorf("%w: %s", ErrLedgerExists, input.ProductID)
		} else if !isNotFound(err) {
			return err
		}
		return tx.InsertLedger(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	s.recordAudit(ctx, "LEDGER_CREATE", entry, nil)
	return entry, nil
}

// AdjustLevels applies a direct stock level edit and re-derives the status.
// Current stock may never drop below what is already reserved.
func (s *Service) AdjustLevels(ctx context.Context, productID string, input AdjustLevelsInput) (LedgerEntry, error) {
	if input.CurrentStock == nil && input.MinLevel == nil {
		return LedgerEntry{}, fmt.Errorf("%w: nothing to adjust", shared.ErrValidation)
	}
	var before, after LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := s.manager.lock(ctx, tx, productID)
		if err != nil {
			return err
		}
		before = entry
		if input.CurrentStock != nil {
			entry.CurrentStock = *input.CurrentStock
		}
		if input.MinLevel != nil {
			entry.MinLevel = *input.MinLevel
		}
		after, err = s.manager.save(ctx, tx, entry, true)
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	s.recordAudit(ctx, "LEDGER_ADJUST", after, map[string]any{
		"current_before": before.CurrentStock,
		"min_before":     before.MinLevel,
	})
	return after, nil
}

// Invalidate withdraws the product from sale. The INVALID status is sticky.
func (s *Service) Invalidate(ctx context.Context, productID string) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := s.manager.lock(ctx, tx, productID)
		if err != nil {
			return err
		}
		locked.Status = StatusInvalid
		entry, err = s.manager.save(ctx, tx, locked, false)
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	s.recordAudit(ctx, "LEDGER_INVALIDATE", entry, nil)
	return entry, nil
}

// Get returns the ledger entry for a product.
func (s *Service) Get(ctx context.Context, productID string) (LedgerEntry, error) {
	return s.repo.GetLedger(ctx, productID)
}

// ListLowStock returns entries currently flagged LOW_STOCK.
func (s *Service) ListLowStock(ctx context.Context) ([]LedgerEntry, error) {
	return s.repo.ListLowStock(ctx)
}

// ListMovements lists the audit trail of a product, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	if filter.ProductID == "" {
		return nil, 0, fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, entry LedgerEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["sku"] = entry.SKU
	meta["current_stock"] = entry.CurrentStock
	meta["min_level"] = entry.MinLevel
	meta["status"] = string(entry.Status)
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "stock_ledger",
		EntityID: entry.ProductID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
