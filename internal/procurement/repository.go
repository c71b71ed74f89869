package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool   *pgxpool.Pool
	tokens *confirmation.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, tokens: confirmation.NewRepository(pool)}
}

type tokenQueries = confirmation.TxQueries

type txRepo struct {
	*inventory.TxQueries
	*tokenQueries
	*catalog.Queries
	tx pgx.Tx
}

// WithTx runs fn in one transaction spanning orders, tokens, catalog status
// and the stock ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			TxQueries:    inventory.NewTxQueries(tx),
			tokenQueries: confirmation.NewTxQueries(tx),
			Queries:      catalog.NewQueries(tx),
			tx:           tx,
		})
	})
}

// ListExpiredTokens delegates to the token store.
func (r *Repository) ListExpiredTokens(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	return r.tokens.ListExpired(ctx, now, afterID, limit)
}

const selectPO = `
	SELECT id, po_number, product_id, supplier_id, ordered_quantity, received_quantity, status,
	       order_date, expected_arrival_date, actual_arrival_date, notes, ordered_by, updated_by,
	       version, updated_at
	FROM purchase_orders`

// GetPO loads a purchase order.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPO(r.pool.QueryRow(ctx, selectPO+` WHERE id = $1`, id))
}

// ListPOs returns a filtered page of purchase orders with the total count.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.SupplierID > 0 {
		conditions = append(conditions, fmt.Sprintf("supplier_id = $%d", argPos))
		args = append(args, filter.SupplierID)
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM purchase_orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}

	query := fmt.Sprintf(`%s %s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`, selectPO, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return orders, total, nil
}

func (t *txRepo) ExistsPONumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE po_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, db.Classify(err)
	}
	return exists, nil
}

func (t *txRepo) InsertPO(ctx context.Context, po *PurchaseOrder) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, product_id, supplier_id, ordered_quantity, received_quantity,
		                             status, order_date, notes, ordered_by, updated_by, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		po.PONumber, po.ProductID, po.SupplierID, po.OrderedQuantity, po.ReceivedQuantity,
		string(po.Status), po.OrderDate, po.Notes, po.OrderedBy, po.UpdatedBy, po.Version, po.UpdatedAt,
	).Scan(&po.ID)
	return db.Classify(err)
}

func (t *txRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPO(t.tx.QueryRow(ctx, selectPO+` WHERE id = $1`, id))
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPO(t.tx.QueryRow(ctx, selectPO+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdatePO(ctx context.Context, po *PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET received_quantity = $3, status = $4, expected_arrival_date = $5, actual_arrival_date = $6,
		    notes = $7, updated_by = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`,
		po.ID, po.Version, po.ReceivedQuantity, string(po.Status), po.ExpectedArrivalDate, po.ActualArrivalDate,
		po.Notes, po.UpdatedBy, po.UpdatedAt,
	)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s version %d", ErrVersionConflict, po.PONumber, po.Version)
	}
	po.Version++
	return nil
}

func (t *txRepo) HasInboundPO(ctx context.Context, productID string, excludeID int64) (bool, error) {
	var inbound bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM purchase_orders
			WHERE product_id = $1 AND id <> $2 AND status IN ($3, $4)
		)`, productID, excludeID, string(StatusDeliveryInProcess), string(StatusPartiallyReceived)).Scan(&inbound)
	if err != nil {
		return false, db.Classify(err)
	}
	return inbound, nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.ProductID, &po.SupplierID, &po.OrderedQuantity, &po.ReceivedQuantity,
		&status, &po.OrderDate, &po.ExpectedArrivalDate, &po.ActualArrivalDate, &po.Notes, &po.OrderedBy,
		&po.UpdatedBy, &po.Version, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, db.Classify(err)
	}
	po.Status = Status(status)
	return po, nil
}
