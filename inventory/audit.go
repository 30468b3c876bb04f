/*
audit.go - Append-only audit trail of stock mutations

PURPOSE:
  Every lot quantity change made by this package is recorded as an
  AuditEntry. The trail serves two masters: compliance (who changed what,
  when, and why) and rollback, which rebuilds what a batch consumed purely
  from its INVENTORY_DEDUCT entries. There is no other transaction log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. ONE ENTRY PER LOT TOUCHED: A deduction writes exactly one entry per lot.
  3. AT MOST ONE COMPENSATION: An INVENTORY_ROLLBACK entry names the deduction
     it compensates (ReversesEntryID). Stores reject a second one.

STRONG TYPING:
  Snapshots are typed structs rather than free-form JSON, so the rollback
  query "action = DEDUCT and batch = X" is a plain indexed column lookup.

SEE ALSO:
  - rollback.go: Reads deductions, writes compensations
  - store.go: AuditLog interface
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuditAction string

const (
	AuditInventoryDeduct   AuditAction = "INVENTORY_DEDUCT"
	AuditInventoryRollback AuditAction = "INVENTORY_ROLLBACK"
)

const (
	ReasonBatchConsumption = "production batch consumption"
	ReasonBatchCancelled   = "production batch cancelled"
)

// LotSnapshot is the state of a lot before a mutation, plus the batch the
// mutation was performed for.
type LotSnapshot struct {
	Quantity   decimal.Decimal
	BatchID    BatchID
	MaterialID MaterialID
}

// LotChange is the state of a lot after a mutation. Delta is always
// positive: the amount deducted or restored, depending on the action.
type LotChange struct {
	Quantity decimal.Decimal
	Delta    decimal.Decimal
	Unit     Unit
	Reason   string
}

type AuditEntry struct {
	ID      AuditEntryID
	Action  AuditAction
	LotID   LotID
	ActorID ActorID
	Before  LotSnapshot
	After   LotChange

	// ReversesEntryID is set on INVENTORY_ROLLBACK entries only.
	ReversesEntryID AuditEntryID

	CreatedAt time.Time
}

func (e AuditEntry) BatchID() BatchID { return e.Before.BatchID }

// AuditFilter selects entries. Zero-valued fields match everything.
type AuditFilter struct {
	Actions []AuditAction
	BatchID BatchID
	LotID   LotID
	ActorID ActorID
}

// Matches reports whether the entry passes the filter. Stores that cannot
// push the filter down to an index use it directly.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BatchID != "" && f.BatchID != e.Before.BatchID {
		return false
	}
	if f.LotID != "" && f.LotID != e.LotID {
		return false
	}
	if f.ActorID != "" && f.ActorID != e.ActorID {
		return false
	}
	return true
}
