package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// LedgerStatus describes the stock condition of a ledger entry.
type LedgerStatus string

const (
	// StatusInStock means stock is above the minimum level.
	StatusInStock LedgerStatus = "IN_STOCK"
	// StatusLowStock means current stock is at or below the minimum level.
	StatusLowStock LedgerStatus = "LOW_STOCK"
	// StatusIncoming marks an entry with a confirmed purchase order on the way.
	StatusIncoming LedgerStatus = "INCOMING"
	// StatusOutgoing is reserved for bulk outbound runs.
	StatusOutgoing LedgerStatus = "OUTGOING"
	// StatusInvalid marks a product withdrawn from sale. It is sticky.
	StatusInvalid LedgerStatus = "INVALID"
)

// LedgerEntry is the authoritative per-SKU stock record.
type LedgerEntry struct {
	SKU           string
	ProductID     string
	Location      string
	CurrentStock  int
	MinLevel      int
	ReservedStock int
	Status        LedgerStatus
	LastUpdate    time.Time
}

// Available returns stock that can still be reserved.
func (e LedgerEntry) Available() int {
	return e.CurrentStock - e.ReservedStock
}

// CheckInvariant verifies 0 <= reserved <= current and non-negative levels.
func (e LedgerEntry) CheckInvariant() error {
	if e.CurrentStock < 0 || e.MinLevel < 0 || e.ReservedStock < 0 {
		return fmt.Errorf("%w: %s: negative quantity (current=%d reserved=%d min=%d)", ErrLedgerInvariant, e.ProductID, e.CurrentStock, e.ReservedStock, e.MinLevel)
	}
	if e.ReservedStock > e.CurrentStock {
		return fmt.Errorf("%w: %s: reserved %d exceeds current %d", ErrLedgerInvariant, e.ProductID, e.ReservedStock, e.CurrentStock)
	}
	return nil
}

// DeriveStatus computes the status from stock levels. INVALID never reverts.
func DeriveStatus(e LedgerEntry) LedgerStatus {
	if e.Status == StatusInvalid {
		return StatusInvalid
	}
	if e.CurrentStock <= e.MinLevel {
		return StatusLowStock
	}
	return StatusInStock
}

// SKUFor builds the default SKU for a product entering the ledger.
func SKUFor(productID string) string {
	return "SKU-" + strings.ToUpper(strings.TrimSpace(productID))
}

// Direction of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ReferenceType names the document that caused a movement.
type ReferenceType string

const (
	ReferenceSalesOrder    ReferenceType = "SALES_ORDER"
	ReferencePurchaseOrder ReferenceType = "PURCHASE_ORDER"
)

// Movement is an immutable audit record of one quantity change.
type Movement struct {
	ID            int64
	ProductID     string
	SKU           string
	Quantity      int
	Direction     Direction
	ReferenceID   string
	ReferenceType ReferenceType
	CreatedBy     string
	CreatedAt     time.Time
}

// Validate checks the movement before it is appended.
func (m Movement) Validate() error {
	if m.ProductID == "" {
		return fmt.Errorf("%w: movement product required", shared.ErrValidation)
	}
	if m.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if m.Direction != DirectionIn && m.Direction != DirectionOut {
		return fmt.Errorf("%w: movement direction %q", shared.ErrValidation, m.Direction)
	}
	if m.ReferenceType != ReferenceSalesOrder && m.ReferenceType != ReferencePurchaseOrder {
		return fmt.Errorf("%w: movement reference type %q", shared.ErrValidation, m.ReferenceType)
	}
	if m.ReferenceID == "" {
		return fmt.Errorf("%w: movement reference required", shared.ErrValidation)
	}
	return nil
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID string
	Limit     int
	Offset    int
}

// CreateEntryInput registers a product in the ledger.
type CreateEntryInput struct {
	ProductID    string
	SKU          string
	Location     string
	CurrentStock int
	MinLevel     int
}

// AdjustLevelsInput carries a direct stock level edit. Nil fields are unchanged.
type AdjustLevelsInput struct {
	CurrentStock *int
	MinLevel     *int
}

// FulfillInput converts a reservation into a deduction plus an OUT movement.
type FulfillInput struct {
	ProductID     string
	Quantity      int
	ReferenceID   string
	ReferenceType ReferenceType
}

var (
	// ErrLedgerNotFound signals catalog/ledger desynchronisation.
	ErrLedgerNotFound = fmt.Errorf("%w: inventory: ledger entry not found", shared.ErrNotFound)
	// ErrLedgerExists indicates the product already has a ledger entry.
	ErrLedgerExists = fmt.Errorf("%w: inventory: ledger entry already exists", shared.ErrDuplicate)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be positive", shared.ErrValidation)
	// ErrInsufficientReserved is returned when fulfilling more than is reserved.
	ErrInsufficientReserved = fmt.Errorf("%w: inventory: approved quantity exceeds reserved stock", shared.ErrInsufficientStock)
	// ErrLedgerInvariant rejects writes that would break 0 <= reserved <= current.
	ErrLedgerInvariant = fmt.Errorf("%w: inventory: ledger invariant violated", shared.ErrValidation)
)
