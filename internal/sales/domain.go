package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// ============================================================================
// SALES ORDER
// ============================================================================

// Status is shared by orders and their items.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
	StatusApproved          Status = "APPROVED"
	StatusCancelled         Status = "CANCELLED"
)

// Open reports whether the order may still be processed or cancelled.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPartiallyApproved
}

type SalesOrder struct {
	ID                    int64       `json:"id"`
	OrderReference        string      `json:"order_reference"`
	CustomerName          string      `json:"customer_name"`
	Destination           string      `json:"destination"`
	Status                Status      `json:"status"`
	OrderDate             time.Time   `json:"order_date"`
	EstimatedDeliveryDate time.Time   `json:"estimated_delivery_date"`
	DeliveryDate          *time.Time  `json:"delivery_date,omitempty"`
	Items                 []OrderItem `json:"items"`
	CreatedBy             string      `json:"created_by"`
	ConfirmedBy           *string     `json:"confirmed_by,omitempty"`
	CancelledBy           *string     `json:"cancelled_by,omitempty"`
	LastUpdate            time.Time   `json:"last_update"`
}

type OrderItem struct {
	ID               int64           `json:"id"`
	SalesOrderID     int64           `json:"sales_order_id"`
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	ApprovedQuantity int             `json:"approved_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	OrderPrice       decimal.Decimal `json:"order_price"`
	Status           Status          `json:"status"`
}

// Remaining is the requested quantity not yet approved.
func (i OrderItem) Remaining() int {
	return i.Quantity - i.ApprovedQuantity
}

// FullyApproved reports whether every unit of the item has been approved.
func (i OrderItem) FullyApproved() bool {
	return i.ApprovedQuantity >= i.Quantity
}

// Total sums the item order prices.
func (o SalesOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.OrderPrice)
	}
	return total
}

func (o SalesOrder) item(id int64) (int, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func linePrice(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// ============================================================================
// REQUESTS
// ============================================================================

type CreateOrderRequest struct {
	CustomerName string              `json:"customer_name" validate:"required,max=200"`
	Destination  string              `json:"destination" validate:"required,max=500"`
	Items        []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CreateItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type UpdateOrderRequest struct {
	CustomerName *string             `json:"customer_name,omitempty" validate:"omitempty,min=1,max=200"`
	Destination  *string             `json:"destination,omitempty" validate:"omitempty,min=1,max=500"`
	Items        []UpdateItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

// UpdateItemRequest changes the quantity of an existing item (ItemID set) or
// adds a new line (ProductID set).
type UpdateItemRequest struct {
	ItemID    int64  `json:"item_id,omitempty" validate:"required_without=ProductID"`
	ProductID string `json:"product_id,omitempty" validate:"required_without=ItemID,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// ProcessOrderRequest maps item ids to the quantity approved in this pass.
type ProcessOrderRequest struct {
	Approvals map[int64]int `json:"approvals" validate:"required,min=1"`
}

type ListOrdersFilter struct {
	Status Status
	Limit  int
	Offset int
}

// ============================================================================
// PORTS
// ============================================================================

// TxRepository is the transactional surface used by the state machine. It
// shares the transaction with the stock ledger and the catalog.
type TxRepository interface {
	inventory.TxRepository
	catalog.Reader
	// LatestReference returns the highest reference starting with prefix and
	// serialises allocation for that prefix until the transaction ends.
	LatestReference(ctx context.Context, prefix string) (string, error)
	// InsertOrder stores the order and its items, filling in their ids.
	InsertOrder(ctx context.Context, order *SalesOrder) error
	GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error)
	// UpdateOrder persists header and items. Items with a zero id are inserted.
	UpdateOrder(ctx context.Context, order *SalesOrder) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListOrders(ctx context.Context, filter ListOrdersFilter) ([]SalesOrder, int, error)
}

// AuditPort records status transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockNotifier is told about entries that dropped to LOW_STOCK.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, entries []inventory.LedgerEntry) error
}

// IdempotencyPort guards order creation against client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

var (
	// ErrOrderNotFound indicates an unknown sales order.
	ErrOrderNotFound = fmt.Errorf("%w: sales: order not found", shared.ErrNotFound)
	// ErrInvalidTransition rejects an operation not allowed in the current status.
	ErrInvalidTransition = fmt.Errorf("%w: sales: operation not allowed in current status", shared.ErrValidation)
	// ErrUnknownItem rejects approvals naming an item outside the order.
	ErrUnknownItem = fmt.Errorf("%w: sales: item does not belong to order", shared.ErrValidation)
	// ErrProductNotSellable rejects lines for products that cannot be sold.
	ErrProductNotSellable = fmt.Errorf("%w: sales: product is not available for sale", shared.ErrValidation)
	// ErrExceedsReserved rejects approving more than the item still holds.
	ErrExceedsReserved = fmt.Errorf("%w: sales: approved quantity exceeds reserved quantity", shared.ErrInsufficientStock)
	// ErrStockUnavailable is returned when a line cannot be reserved.
	ErrStockUnavailable = fmt.Errorf("%w: sales: not enough stock to reserve", shared.ErrInsufficientStock)
)
