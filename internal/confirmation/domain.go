// Package confirmation issues and redeems the single-use links suppliers use
// to accept or decline a purchase order.
package confirmation

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// DefaultTTL is how long a link stays usable after it is issued.
const DefaultTTL = 24 * time.Hour

// Status of a confirmation token.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a valid consumed state.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// Token is the persisted form of a link. Only the hash of the raw value is kept.
type Token struct {
	ID              int64
	Hash            string
	PurchaseOrderID int64
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ClickedAt       *time.Time
	Status          Status
}

// Issued is a freshly minted token together with its raw value. Raw is only
// available at issue time and must go straight into the outgoing email.
type Issued struct {
	Token
	Raw string
}

// Usable reports whether the token may still be redeemed at now. A token is
// still usable at the exact instant it expires.
func Usable(t Token, now time.Time) bool {
	return t.ClickedAt == nil && !lapsed(t, now)
}

// Expired reports whether an unclicked token has passed its expiry. It is the
// complement of Usable for tokens nobody has clicked.
func Expired(t Token, now time.Time) bool {
	return t.ClickedAt == nil && lapsed(t, now)
}

func lapsed(t Token, now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Hash returns the hex BLAKE2b-256 digest stored in place of the raw token.
func Hash(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TxStore is the token persistence available inside a transaction.
type TxStore interface {
	InsertToken(ctx context.Context, t Token) (int64, error)
	// GetTokenForUpdate loads by hash and row-locks until the transaction ends.
	GetTokenForUpdate(ctx context.Context, hash string) (Token, error)
	GetTokenByIDForUpdate(ctx context.Context, id int64) (Token, error)
	// MarkConsumed must affect only a token that has not been clicked yet.
	MarkConsumed(ctx context.Context, id int64, clickedAt time.Time, status Status) error
	DeleteToken(ctx context.Context, id int64) error
}

var (
	// ErrTokenNotFound is returned by stores when no token matches.
	ErrTokenNotFound = fmt.Errorf("%w: confirmation: token not found", shared.ErrNotFound)
	// ErrTokenConsumed is returned when a token is redeemed twice.
	ErrTokenConsumed = fmt.Errorf("%w: confirmation: token already used", shared.ErrConcurrencyConflict)
	// ErrTerminalStatus rejects consuming into a non-terminal status.
	ErrTerminalStatus = fmt.Errorf("%w: confirmation: status must be CONFIRMED or CANCELLED", shared.ErrValidation)
)
