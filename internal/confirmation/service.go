package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Service applies the token rules. It holds no storage of its own; every
// method runs against the caller's transaction.
type Service struct {
	clock shared.Clock
	ttl   time.Duration
}

// NewService builds Service. Zero ttl falls back to DefaultTTL.
func NewService(clock shared.Clock, ttl time.Duration) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{clock: clock, ttl: ttl}
}

// Now exposes the service clock so callers evaluate expiry consistently.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Create mints a PENDING token for the purchase order.
func (s *Service) Create(ctx context.Context, tx TxStore, purchaseOrderID int64) (Issued, error) {
	if purchaseOrderID <= 0 {
		return Issued{}, fmt.Errorf("%w: purchase order id required", shared.ErrValidation)
	}
	raw := uuid.NewString()
	now := s.clock.Now()
	tok := Token{
		Hash:            Hash(raw),
		PurchaseOrderID: purchaseOrderID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		Status:          StatusPending,
	}
	id, err := tx.InsertToken(ctx, tok)
	if err != nil {
		return Issued{}, fmt.Errorf("confirmation: insert token: %w", err)
	}
	tok.ID = id
	return Issued{Token: tok, Raw: raw}, nil
}

// Validate locks and returns the token when it is usable. Unknown, clicked and
// expired tokens all yield nil without an error so the caller cannot tell
// them apart.
func (s *Service) Validate(ctx context.Context, tx TxStore, raw string) (*Token, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return nil, nil
	}
	tok, err := tx.GetTokenForUpdate(ctx, Hash(raw))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !Usable(tok, s.clock.Now()) {
		return nil, nil
	}
	return &tok, nil
}

// Consume records the click and terminal status. A second consume of the same
// token is a concurrency conflict.
func (s *Service) Consume(ctx context.Context, tx TxStore, tok *Token, status Status) error {
	if tok == nil {
		return fmt.Errorf("%w: token required", shared.ErrValidation)
	}
	if !status.Terminal() {
		return ErrTerminalStatus
	}
	if tok.ClickedAt != nil {
		return ErrTokenConsumed
	}
	now := s.clock.Now()
	if err := tx.MarkConsumed(ctx, tok.ID, now, status); err != nil {
		return err
	}
	tok.ClickedAt = &now
	tok.Status = status
	return nil
}

// LockExpired re-locks a sweep candidate and returns it only if it is still
// expired and unclicked at now.
func (s *Service) LockExpired(ctx context.Context, tx TxStore, id int64, now time.Time) (*Token, error) {
	tok, err := tx.GetTokenByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !Expired(tok, now) {
		return nil, nil
	}
	return &tok, nil
}
