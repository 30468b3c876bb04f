/*
Package inventory provides the raw-material consumption engine for production batches.

PURPOSE:
  When a production batch starts, raw-material stock is decremented against a
  recipe's requirements. When the batch is cancelled, the deducted stock is
  restored. Every quantity change is written to an append-only audit trail,
  and that trail is the only record rollback works from.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: Unit of measure of a raw material (kg, liter, pcs)
  - StockLot: One receipt of a raw material with its own remaining quantity
  - Recipe: Ingredient list scaled by a base serving size
  - ConsumptionRequest: One (material, quantity) line of a batch
  - Deduction/Restoration records returned to callers

DESIGN PRINCIPLES:
  1. Precision: All quantities are decimal.Decimal, never float64
  2. FIFO: Lots are consumed oldest first, ties broken by lot ID
  3. All-or-nothing: A batch is deducted completely or not at all
  4. Auditability: One audit entry per lot touched, per direction

USAGE:
  resolver := inventory.NewResolver(store)
  engine := inventory.NewEngine(store)

  reqs, _ := resolver.Resolve(ctx, "rcp-nasi-goreng", decimal.NewFromInt(250))
  result, err := engine.Deduct(ctx, reqs, "batch-0042", "user-7")

SEE ALSO:
  - audit.go: Audit trail entries
  - engine.go: Availability check and FIFO deduction
  - rollback.go: Compensating restoration
  - store.go: Persistence interfaces
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UNITS
// =============================================================================

type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "liter"
	UnitMilliliter Unit = "ml"
	UnitPieces     Unit = "pcs"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MaterialID string
type LotID string
type RecipeID string
type BatchID string
type ActorID string
type AuditEntryID string

// =============================================================================
// REFERENCE DATA
// =============================================================================

// RawMaterial is immutable reference data for this package.
type RawMaterial struct {
	ID   MaterialID
	Name string
	Unit Unit
}

// StockLot is one receipt of a raw material. Lots are created by procurement
// and only ever mutated by deduction and rollback. A lot that reaches zero
// stays in the ledger as an inert record.
type StockLot struct {
	ID         LotID
	MaterialID MaterialID
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	CreatedAt  time.Time
	DeletedAt  *time.Time

	// Version is incremented on every quantity write (optimistic locking).
	Version int64
}

func (l StockLot) IsDeleted() bool { return l.DeletedAt != nil }

// IsConsumable reports whether the lot can take part in a deduction.
func (l StockLot) IsConsumable() bool {
	return !l.IsDeleted() && l.Quantity.IsPositive()
}

type Recipe struct {
	ID              RecipeID
	Name            string
	BaseServingSize decimal.Decimal
	Ingredients     []RecipeIngredient
}

type RecipeIngredient struct {
	MaterialID         MaterialID
	QuantityPerServing decimal.Decimal
	Unit               Unit
}

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

// ConsumptionRequest is one line of a batch's material needs. Transient.
type ConsumptionRequest struct {
	MaterialID MaterialID
	Quantity   decimal.Decimal
	Unit       Unit
}

type InsufficientItem struct {
	MaterialID   MaterialID
	MaterialName string
	Required     decimal.Decimal
	Available    decimal.Decimal
	Unit         Unit
}

// AvailabilityResult lists every shortage at once, not just the first.
type AvailabilityResult struct {
	OK           bool
	Insufficient []InsufficientItem
}

// LotDeduction records what a deduction did to one lot.
type LotDeduction struct {
	LotID            LotID
	MaterialID       MaterialID
	QuantityBefore   decimal.Decimal
	QuantityDeducted decimal.Decimal
	QuantityAfter    decimal.Decimal
	Unit             Unit
}

type DeductionResult struct {
	BatchID    BatchID
	Deductions []LotDeduction
}

// Total sums deducted quantity for one material.
func (r *DeductionResult) Total(materialID MaterialID) decimal.Decimal {
	total := decimal.Zero
	for _, d := range r.Deductions {
		if d.MaterialID == materialID {
			total = total.Add(d.QuantityDeducted)
		}
	}
	return total
}

type LotRestoration struct {
	LotID            LotID
	MaterialID       MaterialID
	QuantityRestored decimal.Decimal
	QuantityAfter    decimal.Decimal
	Unit             Unit
}

type RollbackResult struct {
	BatchID  BatchID
	Restored []LotRestoration
}
