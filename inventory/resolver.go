package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Resolver turns a recipe and a target output into consumption requests.
type Resolver struct {
	Catalog Catalog
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{Catalog: catalog}
}

// Resolve scales the recipe's ingredients by target/BaseServingSize and
// merges ingredient rows naming the same material into one request, so the
// engine never sees a material twice. Requests keep the order in which each
// material first appears in the recipe.
//
// Rows are summed before scaling and each quantity is multiplied by target
// before dividing by the base, so a whole result comes out whole.
func (r *Resolver) Resolve(ctx context.Context, recipeID RecipeID, target decimal.Decimal) ([]ConsumptionRequest, error) {
	if !target.IsPositive() {
		return nil, fmt.Errorf("%w: target quantity must be positive, got %s", ErrInvalidQuantity, target)
	}

	recipe, err := r.Catalog.Recipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if !recipe.BaseServingSize.IsPositive() {
		return nil, fmt.Errorf("%w: recipe %s has base serving size %s",
			ErrInvalidRecipe, recipe.ID, recipe.BaseServingSize)
	}

	requests := make([]ConsumptionRequest, 0, len(recipe.Ingredients))
	index := make(map[MaterialID]int, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		if i, ok := index[ing.MaterialID]; ok {
			requests[i].Quantity = requests[i].Quantity.Add(ing.QuantityPerServing)
			continue
		}
		index[ing.MaterialID] = len(requests)
		requests = append(requests, ConsumptionRequest{
			MaterialID: ing.MaterialID,
			Quantity:   ing.QuantityPerServing,
			Unit:       ing.Unit,
		})
	}
	for i := range requests {
		requests[i].Quantity = requests[i].Quantity.Mul(target).Div(recipe.BaseServingSize)
	}
	return requests, nil
}
