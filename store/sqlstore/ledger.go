package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/inventory"
)

// =============================================================================
// STOCK LOTS (inventory.LotStore interface)
// =============================================================================

const lotColumns = "id, material_id, quantity, unit_price, created_at, deleted_at, version"

func (c *conn) ActiveLots(ctx context.Context, materialID inventory.MaterialID) ([]inventory.StockLot, error) {
	query := `SELECT ` + lotColumns + `
		FROM stock_lots
		WHERE material_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC` + c.dialect.lockClause(c.inTx)

	rows, err := c.q.QueryContext(ctx, query, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []inventory.StockLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (c *conn) Lot(ctx context.Context, id inventory.LotID) (*inventory.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE id = ?` + c.dialect.lockClause(c.inTx)

	rows, err := c.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query lot: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	lot, err := scanLot(rows)
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// UpdateLotQuantity is a compare-and-set on the lot version.
func (c *conn) UpdateLotQuantity(ctx context.Context, lot inventory.StockLot, quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return inventory.ErrNegativeQuantity
	}

	result, err := c.q.ExecContext(ctx, `
		UPDATE stock_lots
		SET quantity = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		quantity.String(), lot.ID, lot.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update lot quantity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update lot quantity: %w", err)
	}
	if rows == 0 {
		var exists int
		err := c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_lots WHERE id = ?", lot.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check lot: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, lot.ID)
		}
		return inventory.ErrConcurrentModification
	}
	return nil
}

func scanLot(rows *sql.Rows) (inventory.StockLot, error) {
	var (
		lot       inventory.StockLot
		quantity  string
		unitPrice string
		createdAt string
		deletedAt sql.NullString
	)
	if err := rows.Scan(&lot.ID, &lot.MaterialID, &quantity, &unitPrice, &createdAt, &deletedAt, &lot.Version); err != nil {
		return lot, fmt.Errorf("failed to scan lot: %w", err)
	}

	var err error
	if lot.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return lot, fmt.Errorf("lot %s: invalid quantity %q: %w", lot.ID, quantity, err)
	}
	if lot.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return lot, fmt.Errorf("lot %s: invalid unit price %q: %w", lot.ID, unitPrice, err)
	}
	if lot.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return lot, fmt.Errorf("lot %s: invalid created_at %q: %w", lot.ID, createdAt, err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(timeLayout, deletedAt.String)
		if err != nil {
			return lot, fmt.Errorf("lot %s: invalid deleted_at %q: %w", lot.ID, deletedAt.String, err)
		}
		lot.DeletedAt = &t
	}
	return lot, nil
}

// SaveLot inserts a new lot (procurement receipt).
func (s *Store) SaveLot(ctx context.Context, lot inventory.StockLot) error {
	if lot.Quantity.IsNegative() {
		return inventory.ErrNegativeQuantity
	}
	var deletedAt sql.NullString
	if lot.DeletedAt != nil {
		deletedAt = nullString(lot.DeletedAt.UTC().Format(timeLayout))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_lots (`+lotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.MaterialID, lot.Quantity.String(), lot.UnitPrice.String(),
		lot.CreatedAt.UTC().Format(timeLayout), deletedAt, lot.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save lot: %w", err)
	}
	return nil
}

// SoftDeleteLot marks a lot deleted. Deleted lots are invisible to FIFO
// scans but remain readable for rollback.
func (s *Store) SoftDeleteLot(ctx context.Context, id inventory.LotID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE stock_lots SET deleted_at = ?, version = version + 1 WHERE id = ?",
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete lot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	return nil
}

// =============================================================================
// AUDIT TRAIL (inventory.AuditLog interface)
// =============================================================================

const auditColumns = `id, action, lot_id, material_id, batch_id, actor_id,
	quantity_before, quantity_after, quantity_delta, unit, reason, reverses_entry_id, created_at`

// AppendAudit adds an entry. Append-only: there is no update or delete.
func (c *conn) AppendAudit(ctx context.Context, e inventory.AuditEntry) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO audit_entries (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.LotID, e.Before.MaterialID, e.Before.BatchID, e.ActorID,
		e.Before.Quantity.String(), e.After.Quantity.String(), e.After.Delta.String(),
		e.After.Unit, e.After.Reason, nullString(string(e.ReversesEntryID)),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if e.ReversesEntryID != "" && strings.Contains(err.Error(), "reverses_entry") {
				return fmt.Errorf("%w: deduction %s already compensated", inventory.ErrAlreadyRolledBack, e.ReversesEntryID)
			}
			return inventory.ErrDuplicateAuditEntry
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (c *conn) AuditEntries(ctx context.Context, filter inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, a)
		}
		where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.LotID != "" {
		where = append(where, "lot_id = ?")
		args = append(args, filter.LotID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}

	query := "SELECT " + auditColumns + " FROM audit_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []inventory.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *conn) IsCompensated(ctx context.Context, entryID inventory.AuditEntryID) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_entries WHERE reverses_entry_id = ?", entryID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check compensation: %w", err)
	}
	return count > 0, nil
}

func scanAuditEntry(rows *sql.Rows) (inventory.AuditEntry, error) {
	var (
		e         inventory.AuditEntry
		before    string
		after     string
		delta     string
		reverses  sql.NullString
		createdAt string
	)
	err := rows.Scan(
		&e.ID, &e.Action, &e.LotID, &e.Before.MaterialID, &e.Before.BatchID, &e.ActorID,
		&before, &after, &delta, &e.After.Unit, &e.After.Reason, &reverses, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	if e.Before.Quantity, err = decimal.NewFromString(before); err != nil {
		return e, fmt.Errorf("audit %s: invalid quantity_before %q: %w", e.ID, before, err)
	}
	if e.After.Quantity, err = decimal.NewFromString(after); err != nil {
		return e, fmt.Errorf("audit %s: invalid quantity_after %q: %w", e.ID, after, err)
	}
	if e.After.Delta, err = decimal.NewFromString(delta); err != nil {
		return e, fmt.Errorf("audit %s: invalid quantity_delta %q: %w", e.ID, delta, err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return e, fmt.Errorf("audit %s: invalid created_at %q: %w", e.ID, createdAt, err)
	}
	e.ReversesEntryID = inventory.AuditEntryID(reverses.String)
	return e, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"audit_entries", "stock_lots", "recipe_ingredients", "recipes", "raw_materials"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
