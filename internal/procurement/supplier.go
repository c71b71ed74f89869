package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// InspectLink resolves a supplier link for display without consuming it.
func (s *Service) InspectLink(ctx context.Context, raw string) (LinkView, error) {
	var view LinkView
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tok, err := s.tokens.Validate(ctx, tx, raw)
		if err != nil {
			return err
		}
		if tok == nil {
			return ErrLinkUnusable
		}
		po, err := tx.GetPO(ctx, tok.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status != StatusAwaitingApproval {
			return ErrLinkUnusable
		}
		product, err := tx.FindProduct(ctx, po.ProductID)
		if err != nil {
			return err
		}
		supplier, err := tx.FindSupplier(ctx, po.SupplierID)
		if err != nil {
			return err
		}
		view = LinkView{Order: po, Product: product, Supplier: supplier, ExpiresAt: tok.ExpiresAt}
		return nil
	})
	if err != nil {
		return LinkView{}, err
	}
	return view, nil
}

// ConfirmBySupplier accepts the order behind raw and records the expected
// arrival date.
func (s *Service) ConfirmBySupplier(ctx context.Context, raw string, expectedArrival time.Time) (PurchaseOrder, error) {
	if expectedArrival.IsZero() {
		return PurchaseOrder{}, fmt.Errorf("%w: expected arrival date required", ErrArrivalDate)
	}
	now := s.clock.Now()
	arrival := shared.StartOfDay(expectedArrival)
	if arrival.Before(shared.StartOfDay(now)) {
		return PurchaseOrder{}, fmt.Errorf("%w: expected arrival %s is in the past", ErrArrivalDate, arrival.Format(time.DateOnly))
	}

	po, err := s.decide(ctx, raw, confirmation.StatusConfirmed, func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		if err := s.prepareInbound(ctx, tx, po.ProductID); err != nil {
			return err
		}
		po.Status = StatusDeliveryInProcess
		po.ExpectedArrivalDate = &arrival
		po.UpdatedBy = UpdatedBySupplierConfirm
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("confirm purchase order: %w", err)
	}
	s.recordTransition(ctx, "PURCHASE_ORDER_CONFIRM", po, StatusAwaitingApproval)
	return po, nil
}

// CancelBySupplier declines the order behind raw.
func (s *Service) CancelBySupplier(ctx context.Context, raw string) (PurchaseOrder, error) {
	po, err := s.decide(ctx, raw, confirmation.StatusCancelled, func(_ context.Context, _ TxRepository, po *PurchaseOrder) error {
		po.Status = StatusFailed
		po.UpdatedBy = UpdatedBySupplierCancel
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("decline purchase order: %w", err)
	}
	s.recordTransition(ctx, "PURCHASE_ORDER_DECLINE", po, StatusAwaitingApproval)
	return po, nil
}

// decide runs the shared token gate: lock the token, lock the order, apply,
// write under the version guard and consume the token.
func (s *Service) decide(ctx context.Context, raw string, outcome confirmation.Status, apply func(context.Context, TxRepository, *PurchaseOrder) error) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tok, err := s.tokens.Validate(ctx, tx, raw)
		if err != nil {
			return err
		}
		if tok == nil {
			return ErrLinkUnusable
		}
		po, err = tx.GetPOForUpdate(ctx, tok.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status != StatusAwaitingApproval {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, po.PONumber, po.Status)
		}
		if err := apply(ctx, tx, &po); err != nil {
			return err
		}
		po.UpdatedAt = s.clock.Now()
		if err := tx.UpdatePO(ctx, &po); err != nil {
			return err
		}
		return s.tokens.Consume(ctx, tx, tok, outcome)
	})
	if err != nil {
		s.logger.Info("supplier decision rejected", slog.String("outcome", string(outcome)), slog.Any("error", err))
		return PurchaseOrder{}, err
	}
	return po, nil
}

// prepareInbound flags the product and its ledger entry as awaiting stock.
// A PLANNING product gets ON_ORDER and, if it never had one, a ledger entry.
func (s *Service) prepareInbound(ctx context.Context, tx TxRepository, productID string) error {
	product, err := tx.FindProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Status == catalog.ProductPlanning {
		if err := tx.UpdateProductStatus(ctx, productID, catalog.ProductOnOrder); err != nil {
			return err
		}
	}
	_, created, err := s.stock.EnsureEntry(ctx, tx, productID, inventory.StatusIncoming)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	_, err = s.stock.MarkIncoming(ctx, tx, productID)
	return err
}
