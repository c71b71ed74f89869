package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Queries reads and updates the products and suppliers tables. It runs on a
// pool or inside a caller's transaction.
type Queries struct {
	db db.Querier
}

// NewQueries binds Queries to a pool or transaction.
func NewQueries(q db.Querier) *Queries {
	return &Queries{db: q}
}

// FindProduct loads a product by id.
func (q *Queries) FindProduct(ctx context.Context, id string) (Product, error) {
	var (
		p      Product
		price  decimal.Decimal
		status string
	)
	err := q.db.QueryRow(ctx, `SELECT id, name, category, price, status FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Category, &price, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return Product{}, db.Classify(err)
	}
	p.Price = price
	p.Status = ProductStatus(status)
	return p, nil
}

// UpdateProductStatus changes the catalog status of a product.
func (q *Queries) UpdateProductStatus(ctx context.Context, id string, status ProductStatus) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return nil
}

// FindSupplier loads a supplier by id.
func (q *Queries) FindSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := q.db.QueryRow(ctx, `SELECT id, name, email FROM suppliers WHERE id = $1`, id).Scan(&s.ID, &s.Name, &s.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("%w: %d", ErrSupplierNotFound, id)
		}
		return Supplier{}, db.Classify(err)
	}
	return s, nil
}
