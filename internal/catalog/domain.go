// Package catalog exposes the product and supplier data the stock core reads.
// Catalog maintenance itself lives elsewhere; only lookups and status changes
// driven by purchasing are implemented here.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// ProductStatus is the catalog lifecycle of a product.
type ProductStatus string

const (
	ProductPlanning     ProductStatus = "PLANNING"
	ProductActive       ProductStatus = "ACTIVE"
	ProductOnOrder      ProductStatus = "ON_ORDER"
	ProductDiscontinued ProductStatus = "DISCONTINUED"
	ProductArchived     ProductStatus = "ARCHIVED"
	ProductRestricted   ProductStatus = "RESTRICTED"
)

// Sellable reports whether stock of the product may be reserved by sales.
func (s ProductStatus) Sellable() bool {
	return s == ProductActive || s == ProductOnOrder
}

// Orderable reports whether new purchase orders may be raised for the product.
func (s ProductStatus) Orderable() bool {
	switch s {
	case ProductDiscontinued, ProductArchived, ProductRestricted:
		return false
	}
	return s != ""
}

// Product is the catalog view used by the core.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Status   ProductStatus
}

// Supplier is the purchasing counterparty.
type Supplier struct {
	ID    int64
	Name  string
	Email string
}

// Reader looks up products.
type Reader interface {
	FindProduct(ctx context.Context, id string) (Product, error)
}

// Writer updates product status on behalf of purchasing.
type Writer interface {
	Reader
	UpdateProductStatus(ctx context.Context, id string, status ProductStatus) error
}

// SupplierReader looks up suppliers.
type SupplierReader interface {
	FindSupplier(ctx context.Context, id int64) (Supplier, error)
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = fmt.Errorf("%w: catalog: product not found", shared.ErrNotFound)
	// ErrSupplierNotFound indicates an unknown supplier id.
	ErrSupplierNotFound = fmt.Errorf("%w: catalog: supplier not found", shared.ErrNotFound)
)
