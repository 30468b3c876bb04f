/*
engine.go - Availability check and FIFO deduction

PURPOSE:
  The Consumption Engine answers two questions for a production batch:
  "is there enough stock?" (CheckAvailability, a pure read) and "take it"
  (Deduct, one atomic transaction across every requested material).

FIFO ALGORITHM (per material, inside one transaction):
  1. Load active lots oldest first (CreatedAt, then ID)
  2. Take min(lot.Quantity, stillNeeded) from each consumable lot
  3. Write the new lot quantity (version checked) and one audit entry
  4. Stop when stillNeeded reaches zero
  5. If lots run out first, return InsufficientInventoryError; the
     transaction is rolled back and no material of the batch is touched

EXAMPLE:
  Lots: L1 (t1, 5kg), L2 (t2, 5kg)   Request: 7kg
  Result: L1 5 -> 0 (deducted 5), L2 5 -> 3 (deducted 2)

CONCURRENCY:
  Two batches racing for the same lot both read version v. The first commit
  moves the lot to v+1; the second write fails with ErrConcurrentModification
  and the whole transaction is retried against fresh quantities, where it
  either succeeds or reports insufficient inventory.

SEE ALSO:
  - rollback.go: Undoing a batch
  - batch.go: Resolve + check + deduct in one call
*/
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultMaxRetries = 3

// Recorder receives operation outcomes. metrics.Metrics implements it.
// ObserveShortage gets an empty id for materials missing from the catalog.
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	ObserveLots(operation string, lots int)
	ObserveShortage(materialID MaterialID)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) ObserveLots(string, int)                        {}
func (nopRecorder) ObserveShortage(MaterialID)                     {}

// Operation names reported to the Recorder.
const (
	OpCheck    = "check"
	OpDeduct   = "deduct"
	OpRollback = "rollback"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store      TxStore
	Logger     *slog.Logger
	Recorder   Recorder
	MaxRetries int

	// Now and NewID are replaceable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:      store,
		Logger:     slog.Default(),
		Recorder:   nopRecorder{},
		MaxRetries: DefaultMaxRetries,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      uuid.NewString,
	}
}

// =============================================================================
// AVAILABILITY CHECK
// =============================================================================

// CheckAvailability reports every material whose active stock is below the
// requested quantity. It never mutates anything. An unknown material is
// reported as a shortage with zero available rather than failing the check.
// The returned error is reserved for persistence failures.
func (e *Engine) CheckAvailability(ctx context.Context, requests []ConsumptionRequest) (*AvailabilityResult, error) {
	start := time.Now()
	result := &AvailabilityResult{OK: true}
	var observed []MaterialID

	for _, req := range requests {
		name, known, err := materialName(ctx, e.Store, req.MaterialID)
		if err != nil {
			e.Recorder.ObserveOperation(OpCheck, "error", time.Since(start))
			return nil, err
		}
		if !known {
			observed = append(observed, "")
			result.Insufficient = append(result.Insufficient, InsufficientItem{
				MaterialID:   req.MaterialID,
				MaterialName: name,
				Required:     req.Quantity,
				Available:    decimal.Zero,
				Unit:         req.Unit,
			})
			continue
		}

		lots, err := e.Store.ActiveLots(ctx, req.MaterialID)
		if err != nil {
			e.Recorder.ObserveOperation(OpCheck, "error", time.Since(start))
			return nil, err
		}
		available := decimal.Zero
		for _, lot := range lots {
			available = available.Add(lot.Quantity)
		}
		if available.LessThan(req.Quantity) {
			observed = append(observed, req.MaterialID)
			result.Insufficient = append(result.Insufficient, InsufficientItem{
				MaterialID:   req.MaterialID,
				MaterialName: name,
				Required:     req.Quantity,
				Available:    available,
				Unit:         req.Unit,
			})
		}
	}

	result.OK = len(result.Insufficient) == 0
	outcome := "ok"
	if !result.OK {
		outcome = "insufficient"
		for _, id := range observed {
			e.Recorder.ObserveShortage(id)
		}
	}
	e.Recorder.ObserveOperation(OpCheck, outcome, time.Since(start))
	return result, nil
}

// =============================================================================
// DEDUCTION
// =============================================================================

// Deduct consumes the requested quantities FIFO inside one transaction. On
// any error, including a shortfall on the last material, nothing is
// committed. ErrConcurrentModification from the store is retried up to
// MaxRetries times.
func (e *Engine) Deduct(ctx context.Context, requests []ConsumptionRequest, batchID BatchID, actorID ActorID) (*DeductionResult, error) {
	if err := validateRequests(requests, batchID); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		result *DeductionResult
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = e.deductOnce(ctx, requests, batchID, actorID)
		if err == nil || !IsRetryable(err) || attempt >= e.MaxRetries {
			break
		}
		e.Logger.DebugContext(ctx, "retrying deduction after concurrent modification",
			"batch_id", batchID, "attempt", attempt+1)
	}

	elapsed := time.Since(start)
	if err != nil {
		e.Recorder.ObserveOperation(OpDeduct, outcomeOf(err), elapsed)
		e.Logger.WarnContext(ctx, "batch deduction aborted",
			"batch_id", batchID, "actor_id", actorID, "error", err, "duration", elapsed)
		return nil, err
	}

	e.Recorder.ObserveOperation(OpDeduct, "ok", elapsed)
	e.Recorder.ObserveLots(OpDeduct, len(result.Deductions))
	e.Logger.InfoContext(ctx, "batch deducted",
		"batch_id", batchID, "actor_id", actorID,
		"materials", len(requests), "lots", len(result.Deductions), "duration", elapsed)
	return result, nil
}

func (e *Engine) deductOnce(ctx context.Context, requests []ConsumptionRequest, batchID BatchID, actorID ActorID) (*DeductionResult, error) {
	result := &DeductionResult{BatchID: batchID}

	err := e.Store.WithTx(ctx, func(s Store) error {
		result.Deductions = result.Deductions[:0]
		for _, req := range requests {
			if req.Quantity.IsZero() {
				continue
			}
			deductions, err := e.deductMaterial(ctx, s, req, batchID, actorID)
			if err != nil {
				return err
			}
			result.Deductions = append(result.Deductions, deductions...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) deductMaterial(ctx context.Context, s Store, req ConsumptionRequest, batchID BatchID, actorID ActorID) ([]LotDeduction, error) {
	lots, err := s.ActiveLots(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}

	var deductions []LotDeduction
	stillNeeded := req.Quantity
	for _, lot := range lots {
		if !stillNeeded.IsPositive() {
			break
		}
		if !lot.IsConsumable() {
			continue
		}

		take := decimal.Min(lot.Quantity, stillNeeded)
		after := lot.Quantity.Sub(take)
		if err := s.UpdateLotQuantity(ctx, lot, after); err != nil {
			return nil, err
		}

		entry := AuditEntry{
			ID:      AuditEntryID(e.NewID()),
			Action:  AuditInventoryDeduct,
			LotID:   lot.ID,
			ActorID: actorID,
			Before: LotSnapshot{
				Quantity:   lot.Quantity,
				BatchID:    batchID,
				MaterialID: req.MaterialID,
			},
			After: LotChange{
				Quantity: after,
				Delta:    take,
				Unit:     req.Unit,
				Reason:   ReasonBatchConsumption,
			},
			CreatedAt: e.Now(),
		}
		if err := s.AppendAudit(ctx, entry); err != nil {
			return nil, err
		}

		deductions = append(deductions, LotDeduction{
			LotID:            lot.ID,
			MaterialID:       req.MaterialID,
			QuantityBefore:   lot.Quantity,
			QuantityDeducted: take,
			QuantityAfter:    after,
			Unit:             req.Unit,
		})
		stillNeeded = stillNeeded.Sub(take)
	}

	if stillNeeded.IsPositive() {
		name, known, err := materialName(ctx, s, req.MaterialID)
		if err != nil {
			return nil, err
		}
		if known {
			e.Recorder.ObserveShortage(req.MaterialID)
		} else {
			e.Recorder.ObserveShortage("")
		}
		return nil, &InsufficientInventoryError{
			MaterialID:   req.MaterialID,
			MaterialName: name,
			Required:     req.Quantity,
			Shortfall:    stillNeeded,
			Unit:         req.Unit,
		}
	}
	return deductions, nil
}

// materialName returns the catalog name, or the id when the material is
// unknown.
func materialName(ctx context.Context, c Catalog, id MaterialID) (string, bool, error) {
	material, err := c.Material(ctx, id)
	switch {
	case err == nil:
		return material.Name, true, nil
	case IsNotFound(err):
		return string(id), false, nil
	default:
		return "", false, err
	}
}

func validateRequests(requests []ConsumptionRequest, batchID BatchID) error {
	if batchID == "" {
		return fmt.Errorf("%w: batch id is required", ErrInvalidRequest)
	}
	seen := make(map[MaterialID]bool, len(requests))
	for _, req := range requests {
		if req.MaterialID == "" {
			return fmt.Errorf("%w: material id is required", ErrInvalidRequest)
		}
		if req.Quantity.IsNegative() {
			return fmt.Errorf("%w: negative quantity %s for %s", ErrInvalidRequest, req.Quantity, req.MaterialID)
		}
		if seen[req.MaterialID] {
			return fmt.Errorf("%w: material %s requested twice", ErrInvalidRequest, req.MaterialID)
		}
		seen[req.MaterialID] = true
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRetryable(err):
		return "conflict"
	case IsClientError(err), IsNotFound(err):
		return "rejected"
	default:
		return "error"
	}
}
