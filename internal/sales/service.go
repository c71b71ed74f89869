package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// DefaultDeliveryLead is added to the order date to estimate delivery.
const DefaultDeliveryLead = 7 * 24 * time.Hour

const idempotencyModule = "sales.create"

// Options carries the optional collaborators of Service.
type Options struct {
	Clock        shared.Clock
	Logger       *slog.Logger
	Audit        AuditPort
	Alerts       LowStockNotifier
	Idempotency  IdempotencyPort
	DeliveryLead time.Duration
}

// Service drives the sales order state machine. Every transition runs in one
// transaction together with the stock reservations it causes.
type Service struct {
	repo   RepositoryPort
	stock  *inventory.Manager
	clock  shared.Clock
	logger *slog.Logger
	audit  AuditPort
	alerts LowStockNotifier
	idem   IdempotencyPort
	lead   time.Duration
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, stock *inventory.Manager, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeliveryLead <= 0 {
		opts.DeliveryLead = DefaultDeliveryLead
	}
	if stock == nil {
		stock = inventory.NewManager(opts.Clock, opts.Logger, nil)
	}
	return &Service{
		repo:   repo,
		stock:  stock,
		clock:  opts.Clock,
		logger: opts.Logger,
		audit:  opts.Audit,
		alerts: opts.Alerts,
		idem:   opts.Idempotency,
		lead:   opts.DeliveryLead,
	}
}

// Create reserves stock for every line in list order and stores a PENDING
// order. Any line that cannot be reserved aborts the whole order.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (SalesOrder, error) {
	if err := validateCreate(req); err != nil {
		return SalesOrder{}, err
	}
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return SalesOrder{}, err
		}
	}

	order, err := s.create(ctx, req)
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if derr := s.idem.Delete(context.WithoutCancel(ctx), idempotencyKey); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", derr))
			}
		}
		return SalesOrder{}, err
	}
	s.recordTransition(ctx, "SALES_ORDER_CREATE", order, "")
	return order, nil
}

func (s *Service) create(ctx context.Context, req CreateOrderRequest) (SalesOrder, error) {
	now := s.clock.Now()
	order := SalesOrder{
		CustomerName:          strings.TrimSpace(req.CustomerName),
		Destination:           strings.TrimSpace(req.Destination),
		Status:                StatusPending,
		OrderDate:             now,
		EstimatedDeliveryDate: now.Add(s.lead),
		CreatedBy:             shared.ActorFromContext(ctx),
		LastUpdate:            now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order.Items = order.Items[:0]
		for _, line := range req.Items {
			item, err := s.reserveLine(ctx, tx, line.ProductID, line.Quantity, false)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}
		ref, err := s.allocateReference(ctx, tx, now)
		if err != nil {
			return err
		}
		order.OrderReference = ref
		return tx.InsertOrder(ctx, &order)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("create sales order: %w", err)
	}
	return order, nil
}

// reserveLine checks the product and reserves qty for a new order line.
// strict limits new lines on an existing order to ACTIVE products.
func (s *Service) reserveLine(ctx context.Context, tx TxRepository, productID string, qty int, strict bool) (OrderItem, error) {
	product, err := tx.FindProduct(ctx, productID)
	if err != nil {
		return OrderItem{}, err
	}
	if !product.Status.Sellable() || (strict && product.Status != catalog.ProductActive) {
		return OrderItem{}, fmt.Errorf("%w: %s is %s", ErrProductNotSellable, product.ID, product.Status)
	}
	ok, err := s.stock.Reserve(ctx, tx, productID, qty)
	if err != nil {
		return OrderItem{}, err
	}
	if !ok {
		return OrderItem{}, fmt.Errorf("%w: product %s quantity %d", ErrStockUnavailable, productID, qty)
	}
	return OrderItem{
		ProductID:  productID,
		Quantity:   qty,
		UnitPrice:  product.Price,
		OrderPrice: linePrice(product.Price, qty),
		Status:     StatusPending,
	}, nil
}

func (s *Service) allocateReference(ctx context.Context, tx TxRepository, day time.Time) (string, error) {
	latest, err := tx.LatestReference(ctx, ReferencePrefix(day))
	if err != nil {
		return "", fmt.Errorf("latest reference: %w", err)
	}
	return NextReference(day, latest)
}

// Update edits a PENDING order. Quantity increases are reserved and decreases
// released; new lines are reserved as on creation.
func (s *Service) Update(ctx context.Context, id int64, req UpdateOrderRequest) (SalesOrder, error) {
	if err := validateUpdate(req); err != nil {
		return SalesOrder{}, err
	}
	var order SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return fmt.Errorf("%w: update requires PENDING, order is %s", ErrInvalidTransition, order.Status)
		}
		if req.CustomerName != nil {
			order.CustomerName = strings.TrimSpace(*req.CustomerName)
		}
		if req.Destination != nil {
			order.Destination = strings.TrimSpace(*req.Destination)
		}
		for _, change := range req.Items {
			if change.ItemID != 0 {
				if err := s.resizeItem(ctx, tx, &order, change); err != nil {
					return err
				}
				continue
			}
			for _, existing := range order.Items {
				if existing.ProductID == change.ProductID {
					return fmt.Errorf("%w: product %s already on order", shared.ErrValidation, change.ProductID)
				}
			}
			item, err := s.reserveLine(ctx, tx, change.ProductID, change.Quantity, true)
			if err != nil {
				return err
			}
			item.SalesOrderID = order.ID
			order.Items = append(order.Items, item)
		}
		order.LastUpdate = s.clock.Now()
		return tx.UpdateOrder(ctx, &order)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("update sales order: %w", err)
	}
	s.recordTransition(ctx, "SALES_ORDER_UPDATE", order, order.Status)
	return order, nil
}

func (s *Service) resizeItem(ctx context.Context, tx TxRepository, order *SalesOrder, change UpdateItemRequest) error {
	idx, ok := order.item(change.ItemID)
	if !ok {
		return fmt.Errorf("%w: item %d", ErrUnknownItem, change.ItemID)
	}
	item := &order.Items[idx]
	switch diff := change.Quantity - item.Quantity; {
	case diff > 0:
		ok, err := s.stock.Reserve(ctx, tx, item.ProductID, diff)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: product %s quantity %d", ErrStockUnavailable, item.ProductID, diff)
		}
	case diff < 0:
		if _, err := s.stock.Release(ctx, tx, item.ProductID, -diff); err != nil {
			return err
		}
	}
	item.Quantity = change.Quantity
	item.OrderPrice = linePrice(item.UnitPrice, item.Quantity)
	return nil
}

// Process approves quantities per item. Each approval converts reserved stock
// into a deduction and appends an OUT movement; all of it commits or none.
func (s *Service) Process(ctx context.Context, id int64, req ProcessOrderRequest) (SalesOrder, error) {
	if len(req.Approvals) == 0 {
		return SalesOrder{}, fmt.Errorf("%w: at least one approval required", shared.ErrValidation)
	}
	var (
		order    SalesOrder
		from     Status
		lowStock []inventory.LedgerEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lowStock = lowStock[:0]
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if !order.Status.Open() {
			return fmt.Errorf("%w: cannot process order in status %s", ErrInvalidTransition, order.Status)
		}
		for itemID, qty := range req.Approvals {
			if _, ok := order.item(itemID); !ok {
				return fmt.Errorf("%w: item %d", ErrUnknownItem, itemID)
			}
			if qty <= 0 {
				return fmt.Errorf("%w: approved quantity for item %d must be positive", shared.ErrValidation, itemID)
			}
		}

		for i := range order.Items {
			item := &order.Items[i]
			qty, ok := req.Approvals[item.ID]
			if !ok {
				continue
			}
			if qty > item.Remaining() {
				return fmt.Errorf("%w: item %d approves %d of %d reserved", ErrExceedsReserved, item.ID, qty, item.Remaining())
			}
			entry, err := s.stock.Fulfill(ctx, tx, item.ProductID, qty)
			if err != nil {
				return err
			}
			if _, err := s.stock.AppendMovement(ctx, tx, inventory.Movement{
				ProductID:     item.ProductID,
				SKU:           entry.SKU,
				Quantity:      qty,
				Direction:     inventory.DirectionOut,
				ReferenceID:   order.OrderReference,
				ReferenceType: inventory.ReferenceSalesOrder,
			}); err != nil {
				return err
			}
			item.ApprovedQuantity += qty
			item.Status = StatusPartiallyApproved
			if item.FullyApproved() {
				item.Status = StatusApproved
			}
			if entry.Status == inventory.StatusLowStock {
				lowStock = append(lowStock, entry)
			}
		}

		order.Status = StatusApproved
		for _, item := range order.Items {
			if !item.FullyApproved() {
				order.Status = StatusPartiallyApproved
				break
			}
		}
		actor := shared.ActorFromContext(ctx)
		order.ConfirmedBy = &actor
		order.LastUpdate = s.clock.Now()
		return tx.UpdateOrder(ctx, &order)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("process sales order: %w", err)
	}
	s.recordTransition(ctx, "SALES_ORDER_PROCESS", order, from)
	s.notifyLowStock(ctx, lowStock)
	return order, nil
}

// Cancel releases the unapproved remainder of every item and closes the order.
func (s *Service) Cancel(ctx context.Context, id int64) (SalesOrder, error) {
	var (
		order SalesOrder
		from  Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if !order.Status.Open() {
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, order.Status)
		}
		for i := range order.Items {
			item := &order.Items[i]
			if item.FullyApproved() {
				continue
			}
			if _, err := s.stock.Release(ctx, tx, item.ProductID, item.Remaining()); err != nil {
				return err
			}
			item.Status = StatusCancelled
		}
		actor := shared.ActorFromContext(ctx)
		order.Status = StatusCancelled
		order.CancelledBy = &actor
		order.LastUpdate = s.clock.Now()
		return tx.UpdateOrder(ctx, &order)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("cancel sales order: %w", err)
	}
	s.recordTransition(ctx, "SALES_ORDER_CANCEL", order, from)
	return order, nil
}

// Get retrieves a sales order by ID.
func (s *Service) Get(ctx context.Context, id int64) (SalesOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns a page of orders, newest first.
func (s *Service) List(ctx context.Context, filter ListOrdersFilter) ([]SalesOrder, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) recordTransition(ctx context.Context, action string, order SalesOrder, from Status) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"order_reference": order.OrderReference,
		"to":              string(order.Status),
		"total":           order.Total().StringFixed(2),
	}
	if from != "" {
		meta["from"] = string(from)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "sales_order",
		EntityID: fmt.Sprint(order.ID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit sales order transition", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notifyLowStock(ctx context.Context, entries []inventory.LedgerEntry) {
	if s.alerts == nil || len(entries) == 0 {
		return
	}
	if err := s.alerts.NotifyLowStock(context.WithoutCancel(ctx), entries); err != nil {
		s.logger.Warn("low stock notification", slog.Int("entries", len(entries)), slog.Any("error", err))
	}
}

func validateCreate(req CreateOrderRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	if strings.TrimSpace(req.Destination) == "" {
		return fmt.Errorf("%w: destination required", shared.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	seen := make(map[string]struct{}, len(req.Items))
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d: product required", shared.ErrValidation, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("%w: product %s listed twice", shared.ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func validateUpdate(req UpdateOrderRequest) error {
	if req.CustomerName == nil && req.Destination == nil && len(req.Items) == 0 {
		return fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	if req.CustomerName != nil && strings.TrimSpace(*req.CustomerName) == "" {
		return fmt.Errorf("%w: customer name cannot be blank", shared.ErrValidation)
	}
	if req.Destination != nil && strings.TrimSpace(*req.Destination) == "" {
		return fmt.Errorf("%w: destination cannot be blank", shared.ErrValidation)
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if (item.ItemID == 0) == (item.ProductID == "") {
			return fmt.Errorf("%w: item %d: give either item_id or product_id", shared.ErrValidation, i+1)
		}
	}
	return nil
}
