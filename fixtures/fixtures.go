/*
Package fixtures loads YAML stock fixtures into a store.

PURPOSE:
  Populates a store with raw materials, stock lots and recipes for demos,
  local development and tests. The engine never writes materials, lots
  or recipes; fixtures are the procurement side's stand-in.

FILE FORMAT:
  name: school-meals
  description: Rice, chicken and oil for a primary school kitchen
  materials:
    - {id: rice, name: White rice, unit: kg}
  lots:
    - {id: rice-001, material: rice, quantity: "25", unit_price: "1.20",
       received_at: "2026-01-05T08:00:00Z"}
  recipes:
    - id: chicken-rice
      name: Chicken rice
      base_serving_size: "1"
      ingredients:
        - {material: rice, quantity_per_serving: "0.15", unit: kg}

  Quantities are strings so they reach decimal.Decimal without passing
  through float64. Unknown fields are rejected.

BUILT-IN FIXTURES:
  Embedded under data/. Names() lists them, Builtin(name) loads one.

SEE ALSO:
  - api/scenarios.go: POST /api/scenarios/load
  - cmd/server/main.go: seed command
*/
package fixtures

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/inventory"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtin embed.FS

// =============================================================================
// FILE TYPES
// =============================================================================

type Fixture struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Materials   []Material `yaml:"materials"`
	Lots        []Lot      `yaml:"lots"`
	Recipes     []Recipe   `yaml:"recipes"`
}

type Material struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Unit string `yaml:"unit"`
}

type Lot struct {
	ID         string `yaml:"id"`
	Material   string `yaml:"material"`
	Quantity   string `yaml:"quantity"`
	UnitPrice  string `yaml:"unit_price,omitempty"`
	ReceivedAt string `yaml:"received_at"`
	// DeletedAt marks a lot already written off.
	DeletedAt string `yaml:"deleted_at,omitempty"`
}

type Recipe struct {
	ID              string       `yaml:"id"`
	Name            string       `yaml:"name"`
	BaseServingSize string       `yaml:"base_serving_size"`
	Ingredients     []Ingredient `yaml:"ingredients"`
}

type Ingredient struct {
	Material           string `yaml:"material"`
	QuantityPerServing string `yaml:"quantity_per_serving"`
	Unit               string `yaml:"unit"`
}

// Seeder is the procurement-side write surface of a store. Both
// store.Memory and sqlstore.Store implement it.
type Seeder interface {
	SaveMaterial(ctx context.Context, m inventory.RawMaterial) error
	SaveLot(ctx context.Context, lot inventory.StockLot) error
	SaveRecipe(ctx context.Context, r inventory.Recipe) error
}

// Resetter clears a store before a fixture is loaded.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// LOADING
// =============================================================================

// Parse decodes and validates a fixture document.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %q: %w", f.Name, err)
	}
	return &f, nil
}

func LoadFile(filename string) (*Fixture, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Names lists the embedded fixtures, sorted.
func Names() []string {
	entries, err := builtin.ReadDir("data")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Builtin loads an embedded fixture by name.
func Builtin(name string) (*Fixture, error) {
	data, err := builtin.ReadFile(path.Join("data", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown fixture %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// Validate checks references and quantities without touching a store.
func (f *Fixture) Validate() error {
	if f.Name == "" {
		return errors.New("name is required")
	}

	materials := make(map[string]bool, len(f.Materials))
	for _, m := range f.Materials {
		if m.ID == "" || m.Unit == "" {
			return fmt.Errorf("material %q: id and unit are required", m.ID)
		}
		if materials[m.ID] {
			return fmt.Errorf("material %q declared twice", m.ID)
		}
		materials[m.ID] = true
	}

	lots := make(map[string]bool, len(f.Lots))
	for _, l := range f.Lots {
		if _, err := l.toStockLot(); err != nil {
			return err
		}
		if !materials[l.Material] {
			return fmt.Errorf("lot %q: unknown material %q", l.ID, l.Material)
		}
		if lots[l.ID] {
			return fmt.Errorf("lot %q declared twice", l.ID)
		}
		lots[l.ID] = true
	}

	for _, r := range f.Recipes {
		if _, err := r.toRecipe(); err != nil {
			return err
		}
		for _, ing := range r.Ingredients {
			if !materials[ing.Material] {
				return fmt.Errorf("recipe %q: unknown material %q", r.ID, ing.Material)
			}
		}
	}
	return nil
}

// Apply writes the fixture into s: materials, then lots, then recipes.
func (f *Fixture) Apply(ctx context.Context, s Seeder) error {
	for _, m := range f.Materials {
		err := s.SaveMaterial(ctx, inventory.RawMaterial{
			ID:   inventory.MaterialID(m.ID),
			Name: m.Name,
			Unit: inventory.Unit(m.Unit),
		})
		if err != nil {
			return fmt.Errorf("material %s: %w", m.ID, err)
		}
	}
	for _, l := range f.Lots {
		lot, err := l.toStockLot()
		if err != nil {
			return err
		}
		if err := s.SaveLot(ctx, lot); err != nil {
			return fmt.Errorf("lot %s: %w", l.ID, err)
		}
	}
	for _, r := range f.Recipes {
		recipe, err := r.toRecipe()
		if err != nil {
			return err
		}
		if err := s.SaveRecipe(ctx, recipe); err != nil {
			return fmt.Errorf("recipe %s: %w", r.ID, err)
		}
	}
	return nil
}

// =============================================================================
// CONVERSION
// =============================================================================

func (l Lot) toStockLot() (inventory.StockLot, error) {
	if l.ID == "" {
		return inventory.StockLot{}, errors.New("lot id is required")
	}
	qty, err := decimal.NewFromString(l.Quantity)
	if err != nil {
		return inventory.StockLot{}, fmt.Errorf("lot %q: invalid quantity %q", l.ID, l.Quantity)
	}
	if qty.IsNegative() {
		return inventory.StockLot{}, fmt.Errorf("lot %q: %w", l.ID, inventory.ErrNegativeQuantity)
	}
	price := decimal.Zero
	if l.UnitPrice != "" {
		if price, err = decimal.NewFromString(l.UnitPrice); err != nil {
			return inventory.StockLot{}, fmt.Errorf("lot %q: invalid unit price %q", l.ID, l.UnitPrice)
		}
	}
	received, err := time.Parse(time.RFC3339, l.ReceivedAt)
	if err != nil {
		return inventory.StockLot{}, fmt.Errorf("lot %q: invalid received_at %q", l.ID, l.ReceivedAt)
	}

	lot := inventory.StockLot{
		ID:         inventory.LotID(l.ID),
		MaterialID: inventory.MaterialID(l.Material),
		Quantity:   qty,
		UnitPrice:  price,
		CreatedAt:  received.UTC(),
	}
	if l.DeletedAt != "" {
		deleted, err := time.Parse(time.RFC3339, l.DeletedAt)
		if err != nil {
			return inventory.StockLot{}, fmt.Errorf("lot %q: invalid deleted_at %q", l.ID, l.DeletedAt)
		}
		deleted = deleted.UTC()
		lot.DeletedAt = &deleted
	}
	return lot, nil
}

func (r Recipe) toRecipe() (inventory.Recipe, error) {
	if r.ID == "" {
		return inventory.Recipe{}, errors.New("recipe id is required")
	}
	base, err := decimal.NewFromString(r.BaseServingSize)
	if err != nil {
		return inventory.Recipe{}, fmt.Errorf("recipe %q: invalid base_serving_size %q", r.ID, r.BaseServingSize)
	}

	recipe := inventory.Recipe{
		ID:              inventory.RecipeID(r.ID),
		Name:            r.Name,
		BaseServingSize: base,
	}
	for _, ing := range r.Ingredients {
		qty, err := decimal.NewFromString(ing.QuantityPerServing)
		if err != nil {
			return inventory.Recipe{}, fmt.Errorf("recipe %q: invalid quantity for %q", r.ID, ing.Material)
		}
		recipe.Ingredients = append(recipe.Ingredients, inventory.RecipeIngredient{
			MaterialID:         inventory.MaterialID(ing.Material),
			QuantityPerServing: qty,
			Unit:               inventory.Unit(ing.Unit),
		})
	}
	return recipe, nil
}
