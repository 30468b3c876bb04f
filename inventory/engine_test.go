package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-stock/inventory"
	"github.com/warp/batch-stock/inventory/store"
)

// =============================================================================
// AVAILABILITY CHECK
// =============================================================================

func TestCheckAvailability_Sufficient(t *testing.T) {
	engine := newTestEngine(flourStore(t))

	result, err := engine.CheckAvailability(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "10", inventory.UnitKilogram),
	})

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Insufficient)
}

func TestCheckAvailability_ReportsEveryShortage(t *testing.T) {
	// GIVEN: 10kg flour and 3kg sugar
	s := flourStore(t)
	addMaterial(t, s, "sugar", "Sugar", inventory.UnitKilogram)
	addLot(t, s, "S1", "sugar", "3", 0)
	engine := newTestEngine(s)

	// WHEN: Checking 12kg flour and 10kg sugar
	result, err := engine.CheckAvailability(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "12", inventory.UnitKilogram),
		request("sugar", "10", inventory.UnitKilogram),
	})

	// THEN: Both shortages are listed in request order
	require.NoError(t, err)
	assert.False(t, result.OK)
	require.Len(t, result.Insufficient, 2)
	assert.Equal(t, "Wheat flour", result.Insufficient[0].MaterialName)
	assert.True(t, result.Insufficient[0].Available.Equal(qty("10")))
	sugar := result.Insufficient[1]
	assert.Equal(t, inventory.MaterialID("sugar"), sugar.MaterialID)
	assert.True(t, sugar.Required.Equal(qty("10")))
	assert.True(t, sugar.Available.Equal(qty("3")))
}

func TestCheckAvailability_UnknownMaterial(t *testing.T) {
	engine := newTestEngine(flourStore(t))

	result, err := engine.CheckAvailability(context.Background(), []inventory.ConsumptionRequest{
		request("saffron", "0.01", inventory.UnitGram),
	})

	require.NoError(t, err)
	assert.False(t, result.OK)
	require.Len(t, result.Insufficient, 1)
	assert.Equal(t, "saffron", result.Insufficient[0].MaterialName)
	assert.True(t, result.Insufficient[0].Available.IsZero())
}

func TestCheckAvailability_IgnoresDeletedLots(t *testing.T) {
	s := flourStore(t)
	require.NoError(t, s.SoftDeleteLot(context.Background(), "L2", day0))
	engine := newTestEngine(s)

	result, err := engine.CheckAvailability(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "6", inventory.UnitKilogram),
	})

	require.NoError(t, err)
	require.Len(t, result.Insufficient, 1)
	assert.True(t, result.Insufficient[0].Available.Equal(qty("5")))
}

func TestCheckAvailability_DoesNotMutate(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)

	_, err := engine.CheckAvailability(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	})
	require.NoError(t, err)

	assert.True(t, lotQty(t, s, "L1").Equal(qty("5")))
	entries, err := s.AuditEntries(context.Background(), inventory.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// FIFO DEDUCTION
// =============================================================================

func TestDeduct_FIFOOldestLotFirst(t *testing.T) {
	// GIVEN: L1 (older, 5kg) and L2 (newer, 5kg)
	s := flourStore(t)
	engine := newTestEngine(s)

	// WHEN: Deducting 7kg
	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	}, "batch-1", "cook")

	// THEN: L1 is drained, L2 gives 2kg
	require.NoError(t, err)
	require.Len(t, result.Deductions, 2)
	assert.Equal(t, inventory.LotID("L1"), result.Deductions[0].LotID)
	assert.True(t, result.Deductions[0].QuantityDeducted.Equal(qty("5")))
	assert.True(t, result.Deductions[0].QuantityAfter.IsZero())
	assert.Equal(t, inventory.LotID("L2"), result.Deductions[1].LotID)
	assert.True(t, result.Deductions[1].QuantityDeducted.Equal(qty("2")))
	assert.True(t, result.Deductions[1].QuantityAfter.Equal(qty("3")))

	assert.True(t, lotQty(t, s, "L1").IsZero())
	assert.True(t, lotQty(t, s, "L2").Equal(qty("3")))
	assert.True(t, result.Total("flour").Equal(qty("7")))
}

func TestDeduct_TieBrokenByLotID(t *testing.T) {
	s := store.NewMemory()
	addMaterial(t, s, "milk", "Milk", inventory.UnitLiter)
	addLot(t, s, "M-b", "milk", "4", 0)
	addLot(t, s, "M-a", "milk", "4", 0)
	engine := newTestEngine(s)

	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("milk", "1", inventory.UnitLiter),
	}, "batch-1", "cook")

	require.NoError(t, err)
	require.Len(t, result.Deductions, 1)
	assert.Equal(t, inventory.LotID("M-a"), result.Deductions[0].LotID)
}

func TestDeduct_SkipsEmptyAndDeletedLots(t *testing.T) {
	s := store.NewMemory()
	addMaterial(t, s, "oil", "Oil", inventory.UnitLiter)
	addLot(t, s, "O1", "oil", "0", 0)
	addLot(t, s, "O2", "oil", "3", 1)
	addLot(t, s, "O3", "oil", "3", 2)
	require.NoError(t, s.SoftDeleteLot(context.Background(), "O2", day0))
	engine := newTestEngine(s)

	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("oil", "2", inventory.UnitLiter),
	}, "batch-1", "cook")

	require.NoError(t, err)
	require.Len(t, result.Deductions, 1)
	assert.Equal(t, inventory.LotID("O3"), result.Deductions[0].LotID)
	assert.True(t, lotQty(t, s, "O2").Equal(qty("3")), "deleted lot untouched")
}

func TestDeduct_ExactDrainLeavesZeroLot(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)

	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "10", inventory.UnitKilogram),
	}, "batch-1", "cook")
	require.NoError(t, err)

	lots, err := s.ActiveLots(context.Background(), "flour")
	require.NoError(t, err)
	require.Len(t, lots, 2, "empty lots stay in the ledger")
	for _, lot := range lots {
		assert.True(t, lot.Quantity.IsZero())
	}
}

func TestDeduct_ConservesQuantity(t *testing.T) {
	// Sum over lots before minus after equals the amount requested,
	// for a spread of request sizes.
	for _, amount := range []string{"0.001", "1", "4.999", "5", "5.5", "9.75", "10"} {
		t.Run(amount, func(t *testing.T) {
			s := flourStore(t)
			addLot(t, s, "L0", "flour", "0.25", -1)
			engine := newTestEngine(s)

			before := totalActive(t, s, "flour")
			result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
				request("flour", amount, inventory.UnitKilogram),
			}, "batch-1", "cook")
			require.NoError(t, err)

			after := totalActive(t, s, "flour")
			assert.True(t, before.Sub(after).Equal(qty(amount)))
			assert.True(t, result.Total("flour").Equal(qty(amount)))
			for _, d := range result.Deductions {
				assert.True(t, d.QuantityAfter.GreaterThanOrEqual(decimal.Zero))
				assert.True(t, d.QuantityBefore.Sub(d.QuantityDeducted).Equal(d.QuantityAfter))
			}
		})
	}
}

func totalActive(t *testing.T, s inventory.Store, material string) decimal.Decimal {
	t.Helper()
	lots, err := s.ActiveLots(context.Background(), inventory.MaterialID(material))
	require.NoError(t, err)
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Quantity)
	}
	return total
}

func TestDeduct_InsufficientAbortsWithoutChanges(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)

	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "11", inventory.UnitKilogram),
	}, "batch-1", "cook")

	var insufficient *inventory.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
	assert.Equal(t, inventory.MaterialID("flour"), insufficient.MaterialID)
	assert.True(t, insufficient.Shortfall.Equal(qty("1")))

	assert.True(t, lotQty(t, s, "L1").Equal(qty("5")))
	assert.True(t, lotQty(t, s, "L2").Equal(qty("5")))
	entries, err := s.AuditEntries(context.Background(), inventory.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeduct_AllOrNothingAcrossMaterials(t *testing.T) {
	// GIVEN: Enough flour, not enough sugar
	s := flourStore(t)
	addMaterial(t, s, "sugar", "Sugar", inventory.UnitKilogram)
	addLot(t, s, "S1", "sugar", "1", 0)
	engine := newTestEngine(s)

	// WHEN: A batch needs both; flour is processed first
	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "6", inventory.UnitKilogram),
		request("sugar", "2", inventory.UnitKilogram),
	}, "batch-1", "cook")

	// THEN: The flour deduction is undone with the rest
	require.ErrorIs(t, err, inventory.ErrInsufficientInventory)
	assert.True(t, lotQty(t, s, "L1").Equal(qty("5")))
	assert.True(t, lotQty(t, s, "L2").Equal(qty("5")))
	assert.True(t, lotQty(t, s, "S1").Equal(qty("1")))
}

func TestDeduct_UnknownMaterialIsInsufficient(t *testing.T) {
	engine := newTestEngine(flourStore(t))

	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("saffron", "1", inventory.UnitGram),
	}, "batch-1", "cook")

	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
}

func TestDeduct_ZeroQuantitySkipped(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)

	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "0", inventory.UnitKilogram),
	}, "batch-1", "cook")

	require.NoError(t, err)
	assert.Empty(t, result.Deductions)
	entries, err := s.AuditEntries(context.Background(), inventory.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeduct_RejectsInvalidRequests(t *testing.T) {
	engine := newTestEngine(flourStore(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		requests []inventory.ConsumptionRequest
		batch    inventory.BatchID
	}{
		{"missing batch id", []inventory.ConsumptionRequest{request("flour", "1", inventory.UnitKilogram)}, ""},
		{"negative quantity", []inventory.ConsumptionRequest{request("flour", "-1", inventory.UnitKilogram)}, "b"},
		{"missing material", []inventory.ConsumptionRequest{request("", "1", inventory.UnitKilogram)}, "b"},
		{"duplicate material", []inventory.ConsumptionRequest{
			request("flour", "1", inventory.UnitKilogram),
			request("flour", "2", inventory.UnitKilogram),
		}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Deduct(ctx, tt.requests, tt.batch, "cook")
			assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
			assert.True(t, inventory.IsClientError(err))
		})
	}
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestDeduct_OneAuditEntryPerLotTouched(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)

	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	}, "batch-1", "cook")
	require.NoError(t, err)

	entries, err := s.AuditEntries(context.Background(), inventory.AuditFilter{BatchID: "batch-1"})
	require.NoError(t, err)
	require.Len(t, entries, len(result.Deductions))

	for i, e := range entries {
		d := result.Deductions[i]
		assert.Equal(t, inventory.AuditInventoryDeduct, e.Action)
		assert.Equal(t, d.LotID, e.LotID)
		assert.Equal(t, inventory.ActorID("cook"), e.ActorID)
		assert.Equal(t, inventory.BatchID("batch-1"), e.BatchID())
		assert.Equal(t, inventory.MaterialID("flour"), e.Before.MaterialID)
		assert.True(t, e.Before.Quantity.Equal(d.QuantityBefore))
		assert.True(t, e.After.Delta.Equal(d.QuantityDeducted))
		assert.Equal(t, inventory.ReasonBatchConsumption, e.After.Reason)
		assert.Empty(t, e.ReversesEntryID)
		// The recorded after-quantity is what the lot holds now
		assert.True(t, e.After.Quantity.Equal(lotQty(t, s, string(e.LotID))))
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestDeduct_ConcurrentBatchesCannotOverspend(t *testing.T) {
	// GIVEN: 10kg flour and two batches each wanting 7kg
	s := flourStore(t)
	engine := newTestEngine(s)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, batch := range []inventory.BatchID{"batch-a", "batch-b"} {
		wg.Add(1)
		go func(i int, batch inventory.BatchID) {
			defer wg.Done()
			_, errs[i] = engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
				request("flour", "7", inventory.UnitKilogram),
			}, batch, "cook")
		}(i, batch)
	}
	wg.Wait()

	// THEN: Exactly one succeeds, the other sees insufficient stock
	succeeded, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, inventory.ErrInsufficientInventory):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, short)
	assert.True(t, totalActive(t, s, "flour").Equal(qty("3")))
}

func TestDeduct_RetriesOnConcurrentModification(t *testing.T) {
	s := &conflictingStore{Memory: flourStore(t), failures: 2}
	engine := newTestEngine(s)

	result, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	}, "batch-1", "cook")

	require.NoError(t, err)
	assert.Equal(t, 3, s.attempts)
	assert.Len(t, result.Deductions, 2)
	assert.True(t, totalActive(t, s, "flour").Equal(qty("3")))

	entries, err := s.AuditEntries(context.Background(), inventory.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "failed attempts leave no audit entries")
}

func TestDeduct_GivesUpAfterMaxRetries(t *testing.T) {
	s := &conflictingStore{Memory: flourStore(t), failures: 100}
	engine := newTestEngine(s)
	engine.MaxRetries = 2

	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "1", inventory.UnitKilogram),
	}, "batch-1", "cook")

	assert.ErrorIs(t, err, inventory.ErrConcurrentModification)
	assert.True(t, inventory.IsRetryable(err))
	assert.Equal(t, 3, s.attempts)
	assert.True(t, lotQty(t, s, "L1").Equal(qty("5")))
}

func TestDeduct_StaleVersionRejectedByStore(t *testing.T) {
	s := flourStore(t)
	ctx := context.Background()

	lot, err := s.Lot(ctx, "L1")
	require.NoError(t, err)
	stale := *lot

	require.NoError(t, s.UpdateLotQuantity(ctx, *lot, qty("4")))
	err = s.UpdateLotQuantity(ctx, stale, qty("3"))

	assert.ErrorIs(t, err, inventory.ErrConcurrentModification)
	assert.True(t, lotQty(t, s, "L1").Equal(qty("4")))
}

// =============================================================================
// RECORDER
// =============================================================================

func TestEngine_ReportsToRecorder(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)
	rec := newFakeRecorder()
	engine.Recorder = rec
	ctx := context.Background()

	_, err := engine.Deduct(ctx, []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	}, "batch-1", "cook")
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, []inventory.ConsumptionRequest{
		request("flour", "7", inventory.UnitKilogram),
	}, "batch-2", "cook")
	require.Error(t, err)

	assert.Equal(t, []recordedOp{
		{inventory.OpDeduct, "ok"},
		{inventory.OpDeduct, "rejected"},
	}, rec.ops)
	assert.Equal(t, 2, rec.lots[inventory.OpDeduct])
	assert.Equal(t, []inventory.MaterialID{"flour"}, rec.shortages)
}

func TestNewEngine_Defaults(t *testing.T) {
	engine := inventory.NewEngine(store.NewMemory())

	assert.Equal(t, inventory.DefaultMaxRetries, engine.MaxRetries)
	assert.NotEmpty(t, engine.NewID())
	assert.NotEqual(t, engine.NewID(), engine.NewID())
	assert.Equal(t, time.UTC, engine.Now().Location())
}

func TestEngine_UnknownMaterialShortagesAreNotLabelledByID(t *testing.T) {
	s := flourStore(t)
	engine := newTestEngine(s)
	rec := newFakeRecorder()
	engine.Recorder = rec
	ctx := context.Background()

	_, err := engine.CheckAvailability(ctx, []inventory.ConsumptionRequest{
		request("flour", "12", inventory.UnitKilogram),
		request("made-up-1", "1", inventory.UnitKilogram),
	})
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, []inventory.ConsumptionRequest{
		request("made-up-2", "1", inventory.UnitKilogram),
	}, "batch-1", "cook")
	require.Error(t, err)

	assert.Equal(t, []inventory.MaterialID{"flour", "", ""}, rec.shortages)
}

func TestDeduct_ShortageCarriesMaterialName(t *testing.T) {
	engine := newTestEngine(flourStore(t))

	_, err := engine.Deduct(context.Background(), []inventory.ConsumptionRequest{
		request("flour", "11", inventory.UnitKilogram),
	}, "batch-1", "cook")

	var insufficient *inventory.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Wheat flour", insufficient.MaterialName)
	assert.True(t, insufficient.Shortfall.Equal(qty("1")))
}
