package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// StartBatch resolves a recipe, checks availability and deducts. A shortage
// found by the pre-flight check is returned as *ShortageError listing every
// short material; a shortage that appears between check and deduct (another
// batch won the race) surfaces as *InsufficientInventoryError.
func (e *Engine) StartBatch(ctx context.Context, recipeID RecipeID, target decimal.Decimal, batchID BatchID, actorID ActorID) (*DeductionResult, error) {
	requests, err := NewResolver(e.Store).Resolve(ctx, recipeID, target)
	if err != nil {
		return nil, err
	}

	availability, err := e.CheckAvailability(ctx, requests)
	if err != nil {
		return nil, err
	}
	if !availability.OK {
		return nil, &ShortageError{Items: availability.Insufficient}
	}

	return e.Deduct(ctx, requests, batchID, actorID)
}
