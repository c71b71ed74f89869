package confirmation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository reads tokens outside of a transaction, for the sweeper scan.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListExpired returns ids above afterID of unclicked tokens that expired
// before now, in id order.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM confirmation_tokens
		WHERE clicked_at IS NULL AND expires_at < $1 AND id > $2
		ORDER BY id
		LIMIT $3`, now, afterID, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, db.Classify(err)
	}
	return ids, nil
}

// TxQueries implements TxStore over a pool or transaction.
type TxQueries struct {
	db db.Querier
}

// NewTxQueries wraps q.
func NewTxQueries(q db.Querier) *TxQueries {
	return &TxQueries{db: q}
}

const selectToken = `SELECT id, token_hash, purchase_order_id, created_at, expires_at, clicked_at, status FROM confirmation_tokens`

// InsertToken stores t and returns its id.
func (q *TxQueries) InsertToken(ctx context.Context, t Token) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO confirmation_tokens (token_hash, purchase_order_id, created_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, t.Hash, t.PurchaseOrderID, t.CreatedAt, t.ExpiresAt, string(t.Status)).Scan(&id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

// GetTokenForUpdate locks the token with the given hash.
func (q *TxQueries) GetTokenForUpdate(ctx context.Context, hash string) (Token, error) {
	return scanToken(q.db.QueryRow(ctx, selectToken+` WHERE token_hash = $1 FOR UPDATE`, hash))
}

// GetTokenByIDForUpdate locks the token with the given id.
func (q *TxQueries) GetTokenByIDForUpdate(ctx context.Context, id int64) (Token, error) {
	return scanToken(q.db.QueryRow(ctx, selectToken+` WHERE id = $1 FOR UPDATE`, id))
}

// MarkConsumed sets clicked_at and status on an unclicked token.
func (q *TxQueries) MarkConsumed(ctx context.Context, id int64, clickedAt time.Time, status Status) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE confirmation_tokens SET clicked_at = $2, status = $3
		WHERE id = $1 AND clicked_at IS NULL`, id, clickedAt, string(status))
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenConsumed
	}
	return nil
}

// DeleteToken removes the token row.
func (q *TxQueries) DeleteToken(ctx context.Context, id int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM confirmation_tokens WHERE id = $1`, id); err != nil {
		return db.Classify(err)
	}
	return nil
}

func scanToken(row pgx.Row) (Token, error) {
	var (
		t      Token
		status string
	)
	if err := row.Scan(&t.ID, &t.Hash, &t.PurchaseOrderID, &t.CreatedAt, &t.ExpiresAt, &t.ClickedAt, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, db.Classify(err)
	}
	t.Status = Status(status)
	return t, nil
}
