package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/inventory"
)

// =============================================================================
// CATALOG (inventory.Catalog interface)
// =============================================================================

func (c *conn) Material(ctx context.Context, id inventory.MaterialID) (*inventory.RawMaterial, error) {
	var m inventory.RawMaterial
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, unit FROM raw_materials WHERE id = ?", id,
	).Scan(&m.ID, &m.Name, &m.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrMaterialNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query material: %w", err)
	}
	return &m, nil
}

func (c *conn) Recipe(ctx context.Context, id inventory.RecipeID) (*inventory.Recipe, error) {
	var (
		r    inventory.Recipe
		base string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, base_serving_size FROM recipes WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &base)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrRecipeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe: %w", err)
	}
	if r.BaseServingSize, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("recipe %s: invalid base serving size %q: %w", id, base, err)
	}

	rows, err := c.q.QueryContext(ctx, `
		SELECT material_id, quantity_per_serving, unit
		FROM recipe_ingredients
		WHERE recipe_id = ?
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe ingredients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ing inventory.RecipeIngredient
			qty string
		)
		if err := rows.Scan(&ing.MaterialID, &qty, &ing.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan recipe ingredient: %w", err)
		}
		if ing.QuantityPerServing, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("recipe %s: invalid ingredient quantity %q: %w", id, qty, err)
		}
		r.Ingredients = append(r.Ingredients, ing)
	}
	return &r, rows.Err()
}

// =============================================================================
// PROCUREMENT WRITES (seeding only, never called by the engine)
// =============================================================================

// SaveMaterial inserts or replaces a raw material.
func (s *Store) SaveMaterial(ctx context.Context, m inventory.RawMaterial) error {
	query := `INSERT INTO raw_materials (id, name, unit) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, unit = excluded.unit`
	if s.dialect == DialectMySQL {
		query = `INSERT INTO raw_materials (id, name, unit) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), unit = VALUES(unit)`
	}
	if _, err := s.db.ExecContext(ctx, query, m.ID, m.Name, m.Unit); err != nil {
		return fmt.Errorf("failed to save material: %w", err)
	}
	return nil
}

// SaveRecipe replaces a recipe and its ingredient rows atomically.
func (s *Store) SaveRecipe(ctx context.Context, r inventory.Recipe) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM recipe_ingredients WHERE recipe_id = ?", r.ID); err != nil {
		return fmt.Errorf("failed to clear recipe ingredients: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM recipes WHERE id = ?", r.ID); err != nil {
		return fmt.Errorf("failed to clear recipe: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx,
		"INSERT INTO recipes (id, name, base_serving_size) VALUES (?, ?, ?)",
		r.ID, r.Name, r.BaseServingSize.String(),
	); err != nil {
		return fmt.Errorf("failed to insert recipe: %w", err)
	}
	for i, ing := range r.Ingredients {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, position, material_id, quantity_per_serving, unit)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, i, ing.MaterialID, ing.QuantityPerServing.String(), ing.Unit,
		); err != nil {
			return fmt.Errorf("failed to insert recipe ingredient: %w", err)
		}
	}
	return sqlTx.Commit()
}
