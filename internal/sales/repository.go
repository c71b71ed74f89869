package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*inventory.TxQueries
	*catalog.Queries
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction shared with the
// stock ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			TxQueries: inventory.NewTxQueries(tx),
			Queries:   catalog.NewQueries(tx),
			tx:        tx,
		})
	})
}

// ============================================================================
// READS
// ============================================================================

const selectOrder = `
	SELECT id, order_reference, customer_name, destination, status, order_date,
	       estimated_delivery_date, delivery_date, created_by, confirmed_by, cancelled_by, last_update
	FROM sales_orders`

// GetOrder loads an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		return SalesOrder{}, err
	}
	items, err := loadItems(ctx, r.pool, []int64{order.ID})
	if err != nil {
		return SalesOrder{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// ListOrders returns a filtered page of orders with the total count.
func (r *Repository) ListOrders(ctx context.Context, filter ListOrdersFilter) ([]SalesOrder, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}

	query := fmt.Sprintf(`%s %s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`, selectOrder, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()

	var orders []SalesOrder
	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

// LatestReference takes a transaction-scoped advisory lock on the prefix so
// concurrent creators allocate references one at a time.
func (t *txRepo) LatestReference(ctx context.Context, prefix string) (string, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, prefix); err != nil {
		return "", db.Classify(err)
	}
	var latest string
	err := t.tx.QueryRow(ctx, `
		SELECT order_reference FROM sales_orders
		WHERE order_reference LIKE $1 || '%'
		ORDER BY LENGTH(order_reference) DESC, order_reference DESC
		LIMIT 1`, prefix).Scan(&latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", db.Classify(err)
	}
	return latest, nil
}

func (t *txRepo) InsertOrder(ctx context.Context, order *SalesOrder) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_orders (order_reference, customer_name, destination, status, order_date,
		                          estimated_delivery_date, created_by, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		order.OrderReference, order.CustomerName, order.Destination, string(order.Status), order.OrderDate,
		order.EstimatedDeliveryDate, order.CreatedBy, order.LastUpdate,
	).Scan(&order.ID)
	if err != nil {
		return db.Classify(err)
	}
	for i := range order.Items {
		order.Items[i].SalesOrderID = order.ID
		if err := t.insertItem(ctx, &order.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	order, err := scanOrder(t.tx.QueryRow(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return SalesOrder{}, err
	}
	items, err := loadItems(ctx, t.tx, []int64{id})
	if err != nil {
		return SalesOrder{}, err
	}
	order.Items = items[id]
	return order, nil
}

func (t *txRepo) UpdateOrder(ctx context.Context, order *SalesOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_orders
		SET customer_name = $2, destination = $3, status = $4, delivery_date = $5,
		    confirmed_by = $6, cancelled_by = $7, last_update = $8
		WHERE id = $1`,
		order.ID, order.CustomerName, order.Destination, string(order.Status), order.DeliveryDate,
		order.ConfirmedBy, order.CancelledBy, order.LastUpdate,
	)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, order.ID)
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == 0 {
			item.SalesOrderID = order.ID
			if err := t.insertItem(ctx, item); err != nil {
				return err
			}
			continue
		}
		if _, err := t.tx.Exec(ctx, `
			UPDATE sales_order_items
			SET quantity = $2, approved_quantity = $3, order_price = $4, status = $5
			WHERE id = $1`,
			item.ID, item.Quantity, item.ApprovedQuantity, item.OrderPrice, string(item.Status),
		); err != nil {
			return db.Classify(err)
		}
	}
	return nil
}

func (t *txRepo) insertItem(ctx context.Context, item *OrderItem) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_order_items (sales_order_id, product_id, quantity, approved_quantity, unit_price, order_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		item.SalesOrderID, item.ProductID, item.Quantity, item.ApprovedQuantity, item.UnitPrice, item.OrderPrice, string(item.Status),
	).Scan(&item.ID)
	return db.Classify(err)
}

// ============================================================================
// SCANNING
// ============================================================================

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var (
		o      SalesOrder
		status string
	)
	err := row.Scan(&o.ID, &o.OrderReference, &o.CustomerName, &o.Destination, &status, &o.OrderDate,
		&o.EstimatedDeliveryDate, &o.DeliveryDate, &o.CreatedBy, &o.ConfirmedBy, &o.CancelledBy, &o.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrOrderNotFound
		}
		return SalesOrder{}, db.Classify(err)
	}
	o.Status = Status(status)
	return o, nil
}

func loadItems(ctx context.Context, q db.Querier, orderIDs []int64) (map[int64][]OrderItem, error) {
	out := make(map[int64][]OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT id, sales_order_id, product_id, quantity, approved_quantity, unit_price, order_price, status
		FROM sales_order_items
		WHERE sales_order_id = ANY($1)
		ORDER BY id`, orderIDs)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item   OrderItem
			status string
		)
		if err := rows.Scan(&item.ID, &item.SalesOrderID, &item.ProductID, &item.Quantity, &item.ApprovedQuantity,
			&item.UnitPrice, &item.OrderPrice, &status); err != nil {
			return nil, db.Classify(err)
		}
		item.Status = Status(status)
		out[item.SalesOrderID] = append(out[item.SalesOrderID], item)
	}
	return out, db.Classify(rows.Err())
}
