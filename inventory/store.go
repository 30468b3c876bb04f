/*
store.go - Persistence interfaces for the stock ledger and audit trail

PURPOSE:
  Defines the boundary between the engine and the database. The engine only
  reads reference data, reads and conditionally updates lot quantities, and
  appends audit entries. Creating lots, recipes and materials is the job of
  procurement and lives on the concrete stores, not here.

KEY INTERFACES:
  Catalog:  Recipes and raw materials (read-only)
  LotStore: Stock lots (FIFO reads, versioned quantity writes)
  AuditLog: Append-only audit trail
  TxStore:  All of the above plus WithTx for atomic units of work

CONCURRENCY CONTRACT:
  UpdateLotQuantity is conditional on the lot version read earlier in the
  same transaction. Stores return ErrConcurrentModification on a mismatch,
  so two batches can never both spend the same stock. Stores that support
  row locks (MySQL) additionally lock rows read by ActiveLots inside WithTx.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory, for tests and demos
  - store/sqlstore: SQLite and MySQL
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// Catalog resolves reference data.
type Catalog interface {
	// Recipe returns ErrRecipeNotFound for unknown ids.
	Recipe(ctx context.Context, id RecipeID) (*Recipe, error)

	// Material returns ErrMaterialNotFound for unknown ids.
	Material(ctx context.Context, id MaterialID) (*RawMaterial, error)
}

type LotStore interface {
	// ActiveLots returns the material's non-deleted lots ordered oldest
	// first (CreatedAt ascending, then ID). Empty lots are included.
	ActiveLots(ctx context.Context, materialID MaterialID) ([]StockLot, error)

	// Lot returns ErrLotNotFound for unknown ids. Soft-deleted lots are returned.
	Lot(ctx context.Context, id LotID) (*StockLot, error)

	// UpdateLotQuantity writes quantity if the stored version still equals
	// lot.Version, otherwise returns ErrConcurrentModification.
	UpdateLotQuantity(ctx context.Context, lot StockLot, quantity decimal.Decimal) error
}

// AuditLog is append-only. No Update, no Delete.
type AuditLog interface {
	// AppendAudit returns ErrAlreadyRolledBack if the entry compensates a
	// deduction that already has a compensation.
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// AuditEntries returns matching entries in the order they were appended.
	AuditEntries(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	// IsCompensated reports whether a rollback entry references entryID.
	IsCompensated(ctx context.Context, entryID AuditEntryID) (bool, error)
}

type Store interface {
	Catalog
	LotStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
