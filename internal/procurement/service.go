package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Options carries the optional collaborators of Service.
type Options struct {
	Clock    shared.Clock
	Logger   *slog.Logger
	Audit    AuditPort
	Notifier Notifier
	// NumberFunc draws PO number candidates. Defaults to NewPONumber.
	NumberFunc func(supplierID int64) string
	// SweepBatch bounds the number of expired tokens listed per query.
	SweepBatch int
}

// Service drives the purchase order state machine.
type Service struct {
	repo       RepositoryPort
	stock      *inventory.Manager
	tokens     *confirmation.Service
	clock      shared.Clock
	logger     *slog.Logger
	audit      AuditPort
	notifier   Notifier
	numberFunc func(int64) string
	sweepBatch int
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, stock *inventory.Manager, tokens *confirmation.Service, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NumberFunc == nil {
		opts.NumberFunc = NewPONumber
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 500
	}
	if stock == nil {
		stock = inventory.NewManager(opts.Clock, opts.Logger, nil)
	}
	if tokens == nil {
		tokens = confirmation.NewService(opts.Clock, confirmation.DefaultTTL)
	}
	return &Service{
		repo:       repo,
		stock:      stock,
		tokens:     tokens,
		clock:      opts.Clock,
		logger:     opts.Logger,
		audit:      opts.Audit,
		notifier:   opts.Notifier,
		numberFunc: opts.NumberFunc,
		sweepBatch: opts.SweepBatch,
	}
}

// Create stores an AWAITING_APPROVAL order with a fresh confirmation token and
// queues the supplier email once committed.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	if input.ProductID == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier id required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: ordered quantity must be positive", shared.ErrValidation)
	}

	now := s.clock.Now()
	actor := shared.ActorFromContext(ctx)
	po := PurchaseOrder{
		ProductID:       input.ProductID,
		SupplierID:      input.SupplierID,
		OrderedQuantity: input.Quantity,
		Status:          StatusAwaitingApproval,
		OrderDate:       now,
		Notes:           strings.TrimSpace(input.Notes),
		OrderedBy:       actor,
		UpdatedBy:       actor,
		UpdatedAt:       now,
	}
	var email ConfirmationEmail
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.FindSupplier(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		product, err := tx.FindProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if !product.Status.Orderable() {
			return fmt.Errorf("%w: %s is %s", ErrProductNotOrderable, product.ID, product.Status)
		}
		number, err := s.allocateNumber(ctx, tx, input.SupplierID)
		if err != nil {
			return err
		}
		po.PONumber = number
		po.Version = 0
		if err := tx.InsertPO(ctx, &po); err != nil {
			return err
		}
		issued, err := s.tokens.Create(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		email = ConfirmationEmail{
			Order:     po,
			Product:   product,
			Supplier:  supplier,
			Token:     issued.Raw,
			ExpiresAt: issued.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("create purchase order: %w", err)
	}

	s.recordTransition(ctx, "PURCHASE_ORDER_CREATE", po, "")
	if s.notifier != nil {
		if err := s.notifier.SendConfirmationEmail(context.WithoutCancel(ctx), email); err != nil {
			s.logger.Error("queue confirmation email",
				slog.String("po_number", po.PONumber),
				slog.Int64("supplier_id", po.SupplierID),
				slog.Any("error", err),
			)
		}
	}
	return po, nil
}

func (s *Service) allocateNumber(ctx context.Context, tx TxRepository, supplierID int64) (string, error) {
	for range numberAttempts {
		candidate := s.numberFunc(supplierID)
		exists, err := tx.ExistsPONumber(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		s.logger.Warn("po number collision", slog.String("po_number", candidate))
	}
	return "", ErrNumberExhausted
}

// Get returns a purchase order.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order id required", shared.ErrValidation)
	}
	return s.repo.GetPO(ctx, id)
}

// List returns a page of purchase orders with the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListPOs(ctx, filter)
}

// Receive books an inbound delivery. The order becomes RECEIVED once the full
// quantity arrived, PARTIALLY_RECEIVED otherwise.
func (s *Service) Receive(ctx context.Context, id int64, input ReceiveInput) (PurchaseOrder, error) {
	if input.Quantity <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: received quantity must be positive", shared.ErrValidation)
	}
	now := s.clock.Now()
	arrival := shared.StartOfDay(now)
	if input.ActualArrivalDate != nil {
		arrival = shared.StartOfDay(*input.ActualArrivalDate)
		if arrival.After(shared.StartOfDay(now)) {
			return PurchaseOrder{}, fmt.Errorf("%w: arrival %s is in the future", ErrArrivalDate, arrival.Format(time.DateOnly))
		}
	}

	var (
		po   PurchaseOrder
		from Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = po.Status
		if po.Status != StatusDeliveryInProcess && po.Status != StatusPartiallyReceived {
			return fmt.Errorf("%w: cannot receive %s order %s", ErrInvalidTransition, po.Status, po.PONumber)
		}
		if po.ReceivedQuantity+input.Quantity > po.OrderedQuantity {
			return fmt.Errorf("%w: %s outstanding %d received %d", ErrOverReceive, po.PONumber, po.Outstanding(), input.Quantity)
		}

		po.ReceivedQuantity += input.Quantity
		po.Status = StatusPartiallyReceived
		if po.ReceivedQuantity == po.OrderedQuantity {
			po.Status = StatusReceived
		}

		if _, err := s.stock.Receive(ctx, tx, po.ProductID, input.Quantity); err != nil {
			return err
		}
		if po.Status == StatusReceived {
			if err := s.settleInbound(ctx, tx, po); err != nil {
				return err
			}
		} else if _, err := s.stock.MarkIncoming(ctx, tx, po.ProductID); err != nil {
			return err
		}
		if _, err := s.stock.AppendMovement(ctx, tx, inventory.Movement{
			ProductID:     po.ProductID,
			SKU:           inventory.SKUFor(po.ProductID),
			Quantity:      input.Quantity,
			Direction:     inventory.DirectionIn,
			ReferenceID:   po.PONumber,
			ReferenceType: inventory.ReferencePurchaseOrder,
		}); err != nil {
			return err
		}

		po.ActualArrivalDate = &arrival
		po.UpdatedBy = shared.ActorFromContext(ctx)
		po.UpdatedAt = now
		return tx.UpdatePO(ctx, &po)
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("receive purchase order: %w", err)
	}
	s.recordTransition(ctx, "PURCHASE_ORDER_RECEIVE", po, from)
	return po, nil
}

// settleInbound runs when po stops being inbound. While another order for the
// same product is still on its way the product stays ON_ORDER and the ledger
// INCOMING; otherwise both are re-derived. The ledger row lock serializes
// concurrent settles for one product.
func (s *Service) settleInbound(ctx context.Context, tx TxRepository, po PurchaseOrder) error {
	_, err := tx.GetLedgerForUpdate(ctx, po.ProductID)
	hasLedger := err == nil
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	inbound, err := tx.HasInboundPO(ctx, po.ProductID, po.ID)
	if err != nil {
		return err
	}
	if inbound {
		if hasLedger {
			_, err = s.stock.MarkIncoming(ctx, tx, po.ProductID)
		}
		return err
	}
	if err := s.promoteProduct(ctx, tx, po.ProductID); err != nil {
		return err
	}
	if hasLedger {
		_, err = s.stock.Refresh(ctx, tx, po.ProductID)
	}
	return err
}

// promoteProduct moves an ON_ORDER product back to ACTIVE.
func (s *Service) promoteProduct(ctx context.Context, tx TxRepository, productID string) error {
	product, err := tx.FindProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Status != catalog.ProductOnOrder {
		return nil
	}
	return tx.UpdateProductStatus(ctx, productID, catalog.ProductActive)
}

// Cancel withdraws an order that has not started arriving.
func (s *Service) Cancel(ctx context.Context, id int64) (PurchaseOrder, error) {
	var (
		po   PurchaseOrder
		from Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = po.Status
		if po.Status != StatusAwaitingApproval && po.Status != StatusDeliveryInProcess {
			return fmt.Errorf("%w: cannot cancel %s order %s", ErrInvalidTransition, po.Status, po.PONumber)
		}
		if err := s.settleInbound(ctx, tx, po); err != nil {
			return err
		}
		po.Status = StatusCancelled
		po.UpdatedBy = shared.ActorFromContext(ctx)
		po.UpdatedAt = s.clock.Now()
		return tx.UpdatePO(ctx, &po)
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("cancel purchase order: %w", err)
	}
	s.recordTransition(ctx, "PURCHASE_ORDER_CANCEL", po, from)
	return po, nil
}

func (s *Service) recordTransition(ctx context.Context, action string, po PurchaseOrder, from Status) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"po_number": po.PONumber,
		"to":        string(po.Status),
		"version":   po.Version,
	}
	if from != "" {
		meta["from"] = string(from)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    po.UpdatedBy,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprint(po.ID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit purchase order transition", slog.String("action", action), slog.Any("error", err))
	}
}
