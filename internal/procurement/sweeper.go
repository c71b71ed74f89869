package procurement

import (
	"context"
	"fmt"
	"log/slog"
)

// ExpireStaleTokens fails every order whose link lapsed without a click and
// deletes the link. Expired tokens are listed in id order, one batch at a
// time, until a short batch comes back. Each token is handled in its own
// transaction; a failure is logged and the sweep moves on.
func (s *Service) ExpireStaleTokens(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	var (
		result  SweepResult
		afterID int64
	)
	for {
		ids, err := s.repo.ListExpiredTokens(ctx, now, afterID, s.sweepBatch)
		if err != nil {
			return result, fmt.Errorf("list expired tokens: %w", err)
		}
		result.Scanned += len(ids)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			failed, deleted, err := s.expireToken(ctx, id)
			if err != nil {
				result.Errors++
				s.logger.Error("expire confirmation token", slog.Int64("token_id", id), slog.Any("error", err))
				continue
			}
			if failed {
				result.Failed++
			}
			if deleted {
				result.Deleted++
			}
		}
		if len(ids) < s.sweepBatch {
			break
		}
		afterID = ids[len(ids)-1]
	}
	s.logger.Info("confirmation sweep finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("failed", result.Failed),
		slog.Int("deleted", result.Deleted),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}

func (s *Service) expireToken(ctx context.Context, id int64) (failed, deleted bool, err error) {
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tok, err := s.tokens.LockExpired(ctx, tx, id, s.clock.Now())
		if err != nil {
			return err
		}
		if tok == nil {
			// Clicked or removed since the scan.
			return nil
		}
		po, err = tx.GetPOForUpdate(ctx, tok.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status == StatusAwaitingApproval {
			po.Status = StatusFailed
			po.UpdatedBy = UpdatedBySweeper
			po.UpdatedAt = s.clock.Now()
			if err := tx.UpdatePO(ctx, &po); err != nil {
				return err
			}
			failed = true
		}
		if err := tx.DeleteToken(ctx, tok.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, false, err
	}
	if failed {
		s.recordTransition(ctx, "PURCHASE_ORDER_EXPIRE", po, StatusAwaitingApproval)
	}
	return failed, deleted, nil
}
