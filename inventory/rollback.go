/*
rollback.go - Compensating restoration of a cancelled batch

PURPOSE:
  Restores the stock a batch consumed, working only from the audit trail.
  For every INVENTORY_DEDUCT entry of the batch that has not been
  compensated yet, the lot gets back exactly the deducted amount and an
  INVENTORY_ROLLBACK entry referencing the deduction is appended.

IDEMPOTENCE:
  A deduction is compensated at most once. The engine skips compensated
  deductions, and stores reject a second compensation for the same entry,
  so two racing rollbacks cannot double-restore. Calling Rollback again
  after a complete rollback returns ErrAlreadyRolledBack and changes nothing.

ATOMICITY:
  All restorations of a batch share one transaction. There is no rollback
  of the rollback: failures are returned to the caller as-is.
*/
package inventory

import (
	"context"
	"fmt"
	"time"
)

// Rollback restores every uncompensated deduction of batchID. A batch with
// no deductions yields an empty result.
func (e *Engine) Rollback(ctx context.Context, batchID BatchID, actorID ActorID) (*RollbackResult, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrInvalidRequest)
	}

	start := time.Now()
	var (
		result *RollbackResult
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = e.rollbackOnce(ctx, batchID, actorID)
		if err == nil || !IsRetryable(err) || attempt >= e.MaxRetries {
			break
		}
		e.Logger.DebugContext(ctx, "retrying rollback after concurrent modification",
			"batch_id", batchID, "attempt", attempt+1)
	}

	elapsed := time.Since(start)
	if err != nil {
		e.Recorder.ObserveOperation(OpRollback, outcomeOf(err), elapsed)
		e.Logger.WarnContext(ctx, "batch rollback failed",
			"batch_id", batchID, "actor_id", actorID, "error", err, "duration", elapsed)
		return nil, err
	}

	e.Recorder.ObserveOperation(OpRollback, "ok", elapsed)
	e.Recorder.ObserveLots(OpRollback, len(result.Restored))
	e.Logger.InfoContext(ctx, "batch rolled back",
		"batch_id", batchID, "actor_id", actorID, "lots", len(result.Restored), "duration", elapsed)
	return result, nil
}

func (e *Engine) rollbackOnce(ctx context.Context, batchID BatchID, actorID ActorID) (*RollbackResult, error) {
	result := &RollbackResult{BatchID: batchID}

	err := e.Store.WithTx(ctx, func(s Store) error {
		result.Restored = result.Restored[:0]

		deductions, err := s.AuditEntries(ctx, AuditFilter{
			Actions: []AuditAction{AuditInventoryDeduct},
			BatchID: batchID,
		})
		if err != nil {
			return err
		}
		if len(deductions) == 0 {
			return nil
		}

		pending := 0
		for _, ded := range deductions {
			compensated, err := s.IsCompensated(ctx, ded.ID)
			if err != nil {
				return err
			}
			if compensated {
				continue
			}
			pending++

			restored, err := e.restore(ctx, s, ded, actorID)
			if err != nil {
				return err
			}
			result.Restored = append(result.Restored, restored)
		}

		if pending == 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyRolledBack, batchID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) restore(ctx context.Context, s Store, ded AuditEntry, actorID ActorID) (LotRestoration, error) {
	lot, err := s.Lot(ctx, ded.LotID)
	if err != nil {
		return LotRestoration{}, fmt.Errorf("restoring deduction %s: %w", ded.ID, err)
	}

	amount := ded.After.Delta
	after := lot.Quantity.Add(amount)
	if err := s.UpdateLotQuantity(ctx, *lot, after); err != nil {
		return LotRestoration{}, err
	}

	entry := AuditEntry{
		ID:      AuditEntryID(e.NewID()),
		Action:  AuditInventoryRollback,
		LotID:   lot.ID,
		ActorID: actorID,
		Before: LotSnapshot{
			Quantity:   lot.Quantity,
			BatchID:    ded.Before.BatchID,
			MaterialID: ded.Before.MaterialID,
		},
		After: LotChange{
			Quantity: after,
			Delta:    amount,
			Unit:     ded.After.Unit,
			Reason:   ReasonBatchCancelled,
		},
		ReversesEntryID: ded.ID,
		CreatedAt:       e.Now(),
	}
	if err := s.AppendAudit(ctx, entry); err != nil {
		return LotRestoration{}, err
	}

	return LotRestoration{
		LotID:            lot.ID,
		MaterialID:       ded.Before.MaterialID,
		QuantityRestored: amount,
		QuantityAfter:    after,
		Unit:             ded.After.Unit,
	}, nil
}

// History returns the batch's full audit trail, deductions and rollbacks,
// in the order they were written.
func (e *Engine) History(ctx context.Context, batchID BatchID) ([]AuditEntry, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrInvalidRequest)
	}
	return e.Store.AuditEntries(ctx, AuditFilter{BatchID: batchID})
}
