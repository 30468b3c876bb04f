// Package store provides an in-memory inventory.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-stock/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the whole ledger in maps guarded by one RWMutex. WithTx
// holds the write lock for the duration of the transaction, so
// transactions are serialized and version checks never fail here.
type Memory struct {
	mu          sync.RWMutex
	materials   map[inventory.MaterialID]inventory.RawMaterial
	recipes     map[inventory.RecipeID]inventory.Recipe
	lots        map[inventory.LotID]inventory.StockLot
	audit       []inventory.AuditEntry
	auditIDs    map[inventory.AuditEntryID]bool
	compensated map[inventory.AuditEntryID]inventory.AuditEntryID
}

var _ inventory.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		materials:   make(map[inventory.MaterialID]inventory.RawMaterial),
		recipes:     make(map[inventory.RecipeID]inventory.Recipe),
		lots:        make(map[inventory.LotID]inventory.StockLot),
		auditIDs:    make(map[inventory.AuditEntryID]bool),
		compensated: make(map[inventory.AuditEntryID]inventory.AuditEntryID),
	}
}

// =============================================================================
// PROCUREMENT WRITES (seeding only)
// =============================================================================

func (m *Memory) SaveMaterial(_ context.Context, mat inventory.RawMaterial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials[mat.ID] = mat
	return nil
}

func (m *Memory) SaveRecipe(_ context.Context, r inventory.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Ingredients = append([]inventory.RecipeIngredient(nil), r.Ingredients...)
	m.recipes[r.ID] = r
	return nil
}

// SaveLot inserts a new lot. Quantities of existing lots are only changed
// through UpdateLotQuantity.
func (m *Memory) SaveLot(_ context.Context, lot inventory.StockLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lots[lot.ID]; ok {
		return fmt.Errorf("lot %s already exists", lot.ID)
	}
	if lot.Quantity.IsNegative() {
		return inventory.ErrNegativeQuantity
	}
	m.lots[lot.ID] = lot
	return nil
}

func (m *Memory) SoftDeleteLot(_ context.Context, id inventory.LotID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return inventory.ErrLotNotFound
	}
	lot.DeletedAt = &at
	m.lots[id] = lot
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials = make(map[inventory.MaterialID]inventory.RawMaterial)
	m.recipes = make(map[inventory.RecipeID]inventory.Recipe)
	m.lots = make(map[inventory.LotID]inventory.StockLot)
	m.audit = nil
	m.auditIDs = make(map[inventory.AuditEntryID]bool)
	m.compensated = make(map[inventory.AuditEntryID]inventory.AuditEntryID)
	return nil
}

// =============================================================================
// inventory.Store
// =============================================================================

func (m *Memory) Recipe(_ context.Context, id inventory.RecipeID) (*inventory.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recipeLocked(id)
}

func (m *Memory) Material(_ context.Context, id inventory.MaterialID) (*inventory.RawMaterial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.materialLocked(id)
}

func (m *Memory) ActiveLots(_ context.Context, materialID inventory.MaterialID) ([]inventory.StockLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLotsLocked(materialID), nil
}

func (m *Memory) Lot(_ context.Context, id inventory.LotID) (*inventory.StockLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lotLocked(id)
}

func (m *Memory) UpdateLotQuantity(_ context.Context, lot inventory.StockLot, quantity decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLotLocked(lot, quantity)
}

func (m *Memory) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) AuditEntries(_ context.Context, filter inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auditEntriesLocked(filter), nil
}

func (m *Memory) IsCompensated(_ context.Context, entryID inventory.AuditEntryID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.compensated[entryID]
	return ok, nil
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) recipeLocked(id inventory.RecipeID) (*inventory.Recipe, error) {
	r, ok := m.recipes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrRecipeNotFound, id)
	}
	r.Ingredients = append([]inventory.RecipeIngredient(nil), r.Ingredients...)
	return &r, nil
}

func (m *Memory) materialLocked(id inventory.MaterialID) (*inventory.RawMaterial, error) {
	mat, ok := m.materials[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrMaterialNotFound, id)
	}
	return &mat, nil
}

func (m *Memory) lotLocked(id inventory.LotID) (*inventory.StockLot, error) {
	lot, ok := m.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	return &lot, nil
}

func (m *Memory) activeLotsLocked(materialID inventory.MaterialID) []inventory.StockLot {
	var result []inventory.StockLot
	for _, lot := range m.lots {
		if lot.MaterialID == materialID && !lot.IsDeleted() {
			result = append(result, lot)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) updateLotLocked(lot inventory.StockLot, quantity decimal.Decimal) error {
	current, ok := m.lots[lot.ID]
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, lot.ID)
	}
	if current.Version != lot.Version {
		return inventory.ErrConcurrentModification
	}
	if quantity.IsNegative() {
		return inventory.ErrNegativeQuantity
	}
	current.Quantity = quantity
	current.Version++
	m.lots[lot.ID] = current
	return nil
}

func (m *Memory) appendAuditLocked(entry inventory.AuditEntry) error {
	if m.auditIDs[entry.ID] {
		return inventory.ErrDuplicateAuditEntry
	}
	if entry.ReversesEntryID != "" {
		if _, ok := m.compensated[entry.ReversesEntryID]; ok {
			return inventory.ErrAlreadyRolledBack
		}
		m.compensated[entry.ReversesEntryID] = entry.ID
	}
	m.auditIDs[entry.ID] = true
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) auditEntriesLocked(filter inventory.AuditFilter) []inventory.AuditEntry {
	var result []inventory.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + restore on error.
func (m *Memory) WithTx(_ context.Context, fn func(inventory.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	lots        map[inventory.LotID]inventory.StockLot
	audit       []inventory.AuditEntry
	auditIDs    map[inventory.AuditEntryID]bool
	compensated map[inventory.AuditEntryID]inventory.AuditEntryID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		lots:        make(map[inventory.LotID]inventory.StockLot, len(m.lots)),
		audit:       append([]inventory.AuditEntry(nil), m.audit...),
		auditIDs:    make(map[inventory.AuditEntryID]bool, len(m.auditIDs)),
		compensated: make(map[inventory.AuditEntryID]inventory.AuditEntryID, len(m.compensated)),
	}
	for k, v := range m.lots {
		s.lots[k] = v
	}
	for k, v := range m.auditIDs {
		s.auditIDs[k] = v
	}
	for k, v := range m.compensated {
		s.compensated[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.lots = s.lots
	m.audit = s.audit
	m.auditIDs = s.auditIDs
	m.compensated = s.compensated
}

// txMemoryView runs against the parent's maps while the parent's write
// lock is held by WithTx.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Recipe(_ context.Context, id inventory.RecipeID) (*inventory.Recipe, error) {
	return tv.parent.recipeLocked(id)
}

func (tv *txMemoryView) Material(_ context.Context, id inventory.MaterialID) (*inventory.RawMaterial, error) {
	return tv.parent.materialLocked(id)
}

func (tv *txMemoryView) ActiveLots(_ context.Context, materialID inventory.MaterialID) ([]inventory.StockLot, error) {
	return tv.parent.activeLotsLocked(materialID), nil
}

func (tv *txMemoryView) Lot(_ context.Context, id inventory.LotID) (*inventory.StockLot, error) {
	return tv.parent.lotLocked(id)
}

func (tv *txMemoryView) UpdateLotQuantity(_ context.Context, lot inventory.StockLot, quantity decimal.Decimal) error {
	return tv.parent.updateLotLocked(lot, quantity)
}

func (tv *txMemoryView) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}

func (tv *txMemoryView) AuditEntries(_ context.Context, filter inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	return tv.parent.auditEntriesLocked(filter), nil
}

func (tv *txMemoryView) IsCompensated(_ context.Context, entryID inventory.AuditEntryID) (bool, error) {
	_, ok := tv.parent.compensated[entryID]
	return ok, nil
}
