package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository persists the stock ledger and movement log in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxQueries(tx))
	})
}

// GetLedger reads an entry without locking.
func (r *Repository) GetLedger(ctx context.Context, productID string) (LedgerEntry, error) {
	return scanLedger(r.pool.QueryRow(ctx, selectLedger+` WHERE product_id = $1`, productID))
}

// ListLowStock returns LOW_STOCK entries ordered by shortfall.
func (r *Repository) ListLowStock(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, selectLedger+` WHERE status = $1 ORDER BY (current_stock - min_level), sku`, string(StatusLowStock))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		entry, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, db.Classify(rows.Err())
}

// ListMovements lists movements for a product with the total count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`, filter.ProductID).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, sku, quantity, direction, reference_id, reference_type, created_by, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, filter.ProductID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var (
			m         Movement
			direction string
			refType   string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.SKU, &m.Quantity, &direction, &m.ReferenceID, &refType, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, 0, db.Classify(err)
		}
		m.Direction = Direction(direction)
		m.ReferenceType = ReferenceType(refType)
		out = append(out, m)
	}
	return out, total, db.Classify(rows.Err())
}

// TxQueries implements TxRepository on a pool or transaction. Other packages
// embed it so ledger writes share their transaction.
type TxQueries struct {
	db db.Querier
}

// NewTxQueries binds TxQueries to q.
func NewTxQueries(q db.Querier) *TxQueries {
	return &TxQueries{db: q}
}

const selectLedger = `SELECT sku, product_id, location, current_stock, min_level, reserved_stock, status, last_update FROM stock_ledger`

// GetLedgerForUpdate locks the entry row until the transaction ends.
func (q *TxQueries) GetLedgerForUpdate(ctx context.Context, productID string) (LedgerEntry, error) {
	return scanLedger(q.db.QueryRow(ctx, selectLedger+` WHERE product_id = $1 FOR UPDATE`, productID))
}

// InsertLedger inserts a new entry.
func (q *TxQueries) InsertLedger(ctx context.Context, entry LedgerEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO stock_ledger (sku, product_id, location, current_stock, min_level, reserved_stock, status, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.SKU, entry.ProductID, entry.Location, entry.CurrentStock, entry.MinLevel, entry.ReservedStock, string(entry.Status), entry.LastUpdate)
	if db.IsUniqueViolation(err, "") {
		return ErrLedgerExists
	}
	return db.Classify(err)
}

// UpdateLedger writes quantities and status of an existing entry.
func (q *TxQueries) UpdateLedger(ctx context.Context, entry LedgerEntry) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE stock_ledger
		SET current_stock = $2, min_level = $3, reserved_stock = $4, status = $5, last_update = $6
		WHERE product_id = $1`,
		entry.ProductID, entry.CurrentStock, entry.MinLevel, entry.ReservedStock, string(entry.Status), entry.LastUpdate)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

// InsertMovement appends to the movement log.
func (q *TxQueries) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, sku, quantity, direction, reference_id, reference_type, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.ProductID, m.SKU, m.Quantity, string(m.Direction), m.ReferenceID, string(m.ReferenceType), m.CreatedBy, m.CreatedAt).Scan(&id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

func scanLedger(row pgx.Row) (LedgerEntry, error) {
	var (
		entry  LedgerEntry
		status string
	)
	err := row.Scan(&entry.SKU, &entry.ProductID, &entry.Location, &entry.CurrentStock, &entry.MinLevel, &entry.ReservedStock, &status, &entry.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerEntry{}, ErrLedgerNotFound
		}
		return LedgerEntry{}, db.Classify(err)
	}
	entry.Status = LedgerStatus(status)
	return entry, nil
}
