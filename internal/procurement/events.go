package procurement

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
)

// ConfirmationEmail carries what the supplier needs to accept or decline an
// order. Token is the raw link secret and must not be logged.
type ConfirmationEmail struct {
	Order     PurchaseOrder
	Product   catalog.Product
	Supplier  catalog.Supplier
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers purchase order notifications. Implementations must not
// block on the network; they are called after the order is committed.
type Notifier interface {
	SendConfirmationEmail(ctx context.Context, email ConfirmationEmail) error
}
