package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Status is the purchase order lifecycle.
type Status string

const (
	StatusAwaitingApproval  Status = "AWAITING_APPROVAL"
	StatusDeliveryInProcess Status = "DELIVERY_IN_PROCESS"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
	StatusFailed            Status = "FAILED"
)

// Finalized reports whether no further transition is possible.
func (s Status) Finalized() bool {
	return s == StatusReceived || s == StatusCancelled || s == StatusFailed
}

// Values recorded in UpdatedBy when no user is involved.
const (
	UpdatedBySupplierConfirm = "Supplier via Confirmation Link"
	UpdatedBySupplierCancel  = "Supplier via Email Link"
	UpdatedBySweeper         = "System: confirmation link expired"
)

// PurchaseOrder is a single-product order placed with a supplier.
type PurchaseOrder struct {
	ID                  int64      `json:"id"`
	PONumber            string     `json:"po_number"`
	ProductID           string     `json:"product_id"`
	SupplierID          int64      `json:"supplier_id"`
	OrderedQuantity     int        `json:"ordered_quantity"`
	ReceivedQuantity    int        `json:"received_quantity"`
	Status              Status     `json:"status"`
	OrderDate           time.Time  `json:"order_date"`
	ExpectedArrivalDate *time.Time `json:"expected_arrival_date,omitempty"`
	ActualArrivalDate   *time.Time `json:"actual_arrival_date,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	OrderedBy           string     `json:"ordered_by"`
	UpdatedBy           string     `json:"updated_by"`
	Version             int64      `json:"version"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsFinalized reports whether the order reached a terminal status.
func (po PurchaseOrder) IsFinalized() bool {
	return po.Status.Finalized()
}

// Outstanding is the quantity still expected from the supplier.
func (po PurchaseOrder) Outstanding() int {
	return po.OrderedQuantity - po.ReceivedQuantity
}

// CreateOrderInput describes a new purchase order.
type CreateOrderInput struct {
	ProductID  string `json:"product_id" validate:"required,max=64"`
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// ReceiveInput books an inbound delivery against an order.
type ReceiveInput struct {
	Quantity          int        `json:"quantity" validate:"gt=0"`
	ActualArrivalDate *time.Time `json:"actual_arrival_date,omitempty"`
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status     Status
	SupplierID int64
	Limit      int
	Offset     int
}

// LinkView is what a supplier sees before acting on a link.
type LinkView struct {
	Order     PurchaseOrder
	Product   catalog.Product
	Supplier  catalog.Supplier
	ExpiresAt time.Time
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Scanned int
	Failed  int
	Deleted int
	Errors  int
}

// ============================================================================
// PORTS
// ============================================================================

// TxRepository exposes transactional operations. Purchase orders share the
// transaction with tokens, catalog status and the stock ledger.
type TxRepository interface {
	inventory.TxRepository
	confirmation.TxStore
	catalog.Writer
	catalog.SupplierReader

	ExistsPONumber(ctx context.Context, number string) (bool, error)
	InsertPO(ctx context.Context, po *PurchaseOrder) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	// UpdatePO writes po only if the stored version still equals po.Version,
	// then bumps po.Version. A stale version yields ErrVersionConflict.
	UpdatePO(ctx context.Context, po *PurchaseOrder) error
	// HasInboundPO reports whether an order other than excludeID is delivering
	// or partially received for the product.
	HasInboundPO(ctx context.Context, productID string, excludeID int64) (bool, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	// ListExpiredTokens pages through expired, unclicked token ids above
	// afterID in ascending order.
	ListExpiredTokens(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

var (
	// ErrPONotFound indicates an unknown purchase order.
	ErrPONotFound = fmt.Errorf("%w: procurement: purchase order not found", shared.ErrNotFound)
	// ErrLinkUnusable hides whether a link is unknown, used or expired.
	ErrLinkUnusable = fmt.Errorf("%w: Email link is expired or already processed.", shared.ErrNotFound)
	// ErrAlreadyDecided is returned when the order left AWAITING_APPROVAL.
	ErrAlreadyDecided = fmt.Errorf("%w: procurement: purchase order is no longer awaiting approval", shared.ErrConcurrencyConflict)
	// ErrVersionConflict is returned when another writer updated the order first.
	ErrVersionConflict = fmt.Errorf("%w: This order has already been processed by someone else.", shared.ErrConcurrencyConflict)
	// ErrInvalidTransition rejects an operation not allowed in the current status.
	ErrInvalidTransition = fmt.Errorf("%w: procurement: operation not allowed in current status", shared.ErrValidation)
	// ErrOverReceive rejects receipts beyond the ordered quantity.
	ErrOverReceive = fmt.Errorf("%w: procurement: received quantity would exceed ordered quantity", shared.ErrValidation)
	// ErrProductNotOrderable rejects orders for withdrawn products.
	ErrProductNotOrderable = fmt.Errorf("%w: procurement: product cannot be ordered", shared.ErrValidation)
	// ErrArrivalDate rejects arrival dates outside the allowed window.
	ErrArrivalDate = fmt.Errorf("%w: procurement: invalid arrival date", shared.ErrValidation)
	// ErrNumberExhausted is returned when no unique PO number could be drawn.
	ErrNumberExhausted = fmt.Errorf("%w: procurement: could not allocate a unique PO number", shared.ErrDuplicate)
)
