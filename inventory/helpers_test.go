package inventory_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-stock/inventory"
	"github.com/warp/batch-stock/inventory/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var day0 = time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(s inventory.TxStore) *inventory.Engine {
	e := inventory.NewEngine(s)
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var mu sync.Mutex
	n := 0
	e.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("audit-%03d", n)
	}
	e.Now = func() time.Time { return day0.Add(24 * time.Hour) }
	return e
}

func addMaterial(t *testing.T, s *store.Memory, id, name string, unit inventory.Unit) {
	t.Helper()
	require.NoError(t, s.SaveMaterial(context.Background(), inventory.RawMaterial{
		ID: inventory.MaterialID(id), Name: name, Unit: unit,
	}))
}

// addLot receives a lot hoursAfter day0.
func addLot(t *testing.T, s *store.Memory, id, material, quantity string, hoursAfter int) {
	t.Helper()
	require.NoError(t, s.SaveLot(context.Background(), inventory.StockLot{
		ID:         inventory.LotID(id),
		MaterialID: inventory.MaterialID(material),
		Quantity:   qty(quantity),
		UnitPrice:  qty("1"),
		CreatedAt:  day0.Add(time.Duration(hoursAfter) * time.Hour),
	}))
}

func lotQty(t *testing.T, s inventory.Store, id string) decimal.Decimal {
	t.Helper()
	lot, err := s.Lot(context.Background(), inventory.LotID(id))
	require.NoError(t, err)
	return lot.Quantity
}

func request(material, quantity string, unit inventory.Unit) inventory.ConsumptionRequest {
	return inventory.ConsumptionRequest{
		MaterialID: inventory.MaterialID(material),
		Quantity:   qty(quantity),
		Unit:       unit,
	}
}

// flourStore has two 5kg flour lots, the older one first.
func flourStore(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	addMaterial(t, s, "flour", "Wheat flour", inventory.UnitKilogram)
	addLot(t, s, "L1", "flour", "5", 0)
	addLot(t, s, "L2", "flour", "5", 24)
	return s
}

// =============================================================================
// FAKES
// =============================================================================

// conflictingStore fails the first `failures` lot writes with
// ErrConcurrentModification, as if another writer got there first.
type conflictingStore struct {
	*store.Memory
	mu       sync.Mutex
	failures int
	attempts int
}

func (c *conflictingStore) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
	return c.Memory.WithTx(ctx, func(s inventory.Store) error {
		return fn(&conflictingView{Store: s, parent: c})
	})
}

type conflictingView struct {
	inventory.Store
	parent *conflictingStore
}

func (v *conflictingView) UpdateLotQuantity(ctx context.Context, lot inventory.StockLot, quantity decimal.Decimal) error {
	v.parent.mu.Lock()
	fail := v.parent.failures > 0
	if fail {
		v.parent.failures--
	}
	v.parent.mu.Unlock()
	if fail {
		return inventory.ErrConcurrentModification
	}
	return v.Store.UpdateLotQuantity(ctx, lot, quantity)
}

type recordedOp struct {
	operation string
	outcome   string
}

type fakeRecorder struct {
	mu        sync.Mutex
	ops       []recordedOp
	lots      map[string]int
	shortages []inventory.MaterialID
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{lots: make(map[string]int)}
}

func (r *fakeRecorder) ObserveOperation(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{operation, outcome})
}

func (r *fakeRecorder) ObserveLots(operation string, lots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[operation] += lots
}

func (r *fakeRecorder) ObserveShortage(materialID inventory.MaterialID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shortages = append(r.shortages, materialID)
}
