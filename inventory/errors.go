/*
errors.go - Centralized error types for the consumption engine

ERROR CATEGORIES:
  1. Lookup errors - recipe, material or lot does not exist
  2. Business errors - insufficient stock, batch already rolled back
  3. Store errors - concurrent modification, persistence failures

Persistence failures are not wrapped in a dedicated type: the store's error
is returned unchanged after the transaction has been rolled back.

USAGE:
  var shortErr *inventory.InsufficientInventoryError
  if errors.As(err, &shortErr) {
      fmt.Printf("%s short by %s\n", shortErr.MaterialID, shortErr.Shortfall)
  }
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrRecipeNotFound   = errors.New("recipe not found")
	ErrMaterialNotFound = errors.New("raw material not found")
	ErrLotNotFound      = errors.New("stock lot not found")

	// ErrInvalidRecipe is returned when a recipe cannot be scaled
	// (non-positive base serving size).
	ErrInvalidRecipe = errors.New("invalid recipe")

	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidRequest is returned for malformed consumption requests:
	// missing batch id, negative quantities, or a material listed twice.
	ErrInvalidRequest = errors.New("invalid consumption request")

	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrAlreadyRolledBack is returned when every deduction of a batch
	// has already been compensated.
	ErrAlreadyRolledBack = errors.New("batch already rolled back")

	// ErrConcurrentModification is returned when a lot changed between
	// read and write inside a transaction. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNegativeQuantity is returned by stores asked to persist a
	// negative lot quantity.
	ErrNegativeQuantity = errors.New("lot quantity would become negative")

	ErrDuplicateAuditEntry = errors.New("duplicate audit entry")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientInventoryError is raised when a deduction runs out of lots
// before the requested quantity is covered. The whole batch is aborted.
type InsufficientInventoryError struct {
	MaterialID   MaterialID
	MaterialName string
	Required     decimal.Decimal
	Shortfall    decimal.Decimal
	Unit         Unit
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: required %s %s, short by %s %s",
		e.MaterialID, e.Required, e.Unit, e.Shortfall, e.Unit)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// ShortageError carries the full pre-flight shortage list of a batch.
type ShortageError struct {
	Items []InsufficientItem
}

func (e *ShortageError) Error() string {
	names := make([]string, len(e.Items))
	for i, item := range e.Items {
		names[i] = fmt.Sprintf("%s (required %s, available %s %s)",
			item.MaterialName, item.Required, item.Available, item.Unit)
	}
	return "insufficient inventory: " + strings.Join(names, ", ")
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientInventory
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input
// or a business rule, not an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrAlreadyRolledBack) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidRecipe)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecipeNotFound) ||
		errors.Is(err, ErrMaterialNotFound) ||
		errors.Is(err, ErrLotNotFound)
}
