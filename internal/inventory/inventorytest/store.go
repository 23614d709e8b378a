// Package inventorytest provides an in-memory inventory repository for tests
// of the inventory package and of the modules built on top of it.
package inventorytest

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/warehouses"
)

type productKey struct {
	tenantID  int64
	productID int64
}

// Store implements inventory.RepositoryPort in memory. Transactions are
// serialized and roll back on error.
type Store struct {
	mu         sync.Mutex
	items      map[inventory.ItemKey]inventory.StockItem
	movements  []inventory.Movement
	warehouses map[int64]warehouses.Warehouse
	products   map[productKey]inventory.ProductCost
	nextItem   int64
	nextMove   int64
	locks      []inventory.ItemKey

	// FailInsertMovement, when set, is returned by InsertMovement.
	FailInsertMovement error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		items:      make(map[inventory.ItemKey]inventory.StockItem),
		warehouses: make(map[int64]warehouses.Warehouse),
		products:   make(map[productKey]inventory.ProductCost),
	}
}

// AddWarehouse registers a warehouse; an empty status means ACTIVE.
func (s *Store) AddWarehouse(w warehouses.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Status == "" {
		w.Status = warehouses.StatusActive
	}
	s.warehouses[w.ID] = w
}

// SetProductCost registers the catalogue costs of a product.
func (s *Store) SetProductCost(tenantID, productID int64, cost inventory.ProductCost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productKey{tenantID, productID}] = cost
}

// PutItem stores item as is.
func (s *Store) PutItem(item inventory.StockItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextItem++
		item.ID = s.nextItem
	}
	s.items[item.Key()] = item
}

// AddMovement appends a movement without touching the ledger.
func (s *Store) AddMovement(mv inventory.Movement) inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMove++
	mv.ID = s.nextMove
	s.movements = append(s.movements, mv)
	return mv
}

// Item returns the stored item for key.
func (s *Store) Item(key inventory.ItemKey) (inventory.StockItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	return item, ok
}

// Items returns every stored item.
func (s *Store) Items() []inventory.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.StockItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sortItems(out)
	return out
}

// LockOrder returns the keys row-locked so far, in order.
func (s *Store) LockOrder() []inventory.ItemKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.ItemKey, len(s.locks))
	copy(out, s.locks)
	return out
}

// ResetLocks forgets the recorded lock order.
func (s *Store) ResetLocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = nil
}

// Movements returns every movement in insertion order.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// WithTx runs fn under the store lock, restoring the prior state when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make(map[inventory.ItemKey]inventory.StockItem, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	moves := len(s.movements)
	nextItem, nextMove := s.nextItem, s.nextMove
	if err := fn(ctx, view{s}); err != nil {
		s.items = items
		s.movements = s.movements[:moves]
		s.nextItem, s.nextMove = nextItem, nextMove
		return err
	}
	return nil
}

// WithSnapshot runs fn under the store lock.
func (s *Store) WithSnapshot(ctx context.Context, fn func(context.Context, inventory.SnapshotReader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, view{s})
}

// view is the store seen from inside a transaction; the lock is already held.
type view struct {
	s *Store
}

func (v view) GetWarehouse(_ context.Context, tenantID, warehouseID int64) (warehouses.Warehouse, error) {
	w, ok := v.s.warehouses[warehouseID]
	if !ok || (w.TenantID != 0 && w.TenantID != tenantID) {
		return warehouses.Warehouse{}, shared.NotFound("warehouse", warehouseID)
	}
	return w, nil
}

func (v view) GetStockItem(_ context.Context, key inventory.ItemKey) (inventory.StockItem, error) {
	item, ok := v.s.items[key]
	if !ok {
		return inventory.StockItem{}, inventory.ErrStockItemNotFound
	}
	return item, nil
}

func (v view) GetStockItemForUpdate(ctx context.Context, key inventory.ItemKey) (inventory.StockItem, error) {
	v.s.locks = append(v.s.locks, key)
	return v.GetStockItem(ctx, key)
}

func (v view) EnsureStockItemForUpdate(_ context.Context, key inventory.ItemKey) (inventory.StockItem, error) {
	v.s.locks = append(v.s.locks, key)
	if item, ok := v.s.items[key]; ok {
		return item, nil
	}
	v.s.nextItem++
	item := inventory.NewStockItem(key)
	item.ID = v.s.nextItem
	item.CreatedAt = time.Now().UTC()
	v.s.items[key] = item
	return item, nil
}

func (v view) UpdateStockItem(_ context.Context, item inventory.StockItem) error {
	if _, ok := v.s.items[item.Key()]; !ok {
		return inventory.ErrStockItemNotFound
	}
	v.s.items[item.Key()] = item
	return nil
}

func (v view) InsertMovement(_ context.Context, mv inventory.Movement) (inventory.Movement, error) {
	if v.s.FailInsertMovement != nil {
		return inventory.Movement{}, v.s.FailInsertMovement
	}
	v.s.nextMove++
	mv.ID = v.s.nextMove
	v.s.movements = append(v.s.movements, mv)
	return mv, nil
}

func (v view) ListStockItems(_ context.Context, filter inventory.StockItemFilter) ([]inventory.StockItem, error) {
	var out []inventory.StockItem
	for _, item := range v.s.items {
		if item.TenantID != filter.TenantID {
			continue
		}
		if filter.WarehouseID != 0 && item.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ProductID != 0 && item.ProductID != filter.ProductID {
			continue
		}
		out = append(out, item)
	}
	sortItems(out)
	return out, nil
}

func (v view) ListReceipts(_ context.Context, key inventory.ItemKey, newestFirst bool, limit int) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, mv := range v.s.movements {
		if mv.TenantID != key.TenantID || mv.ProductID != key.ProductID || mv.Type != inventory.MovementReceipt {
			continue
		}
		if mv.ToWarehouseID == nil || *mv.ToWarehouseID != key.WarehouseID {
			continue
		}
		out = append(out, mv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.MovementDate.Equal(b.MovementDate) {
			if newestFirst {
				return a.MovementDate.After(b.MovementDate)
			}
			return a.MovementDate.Before(b.MovementDate)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) SumIssued(_ context.Context, key inventory.ItemKey, since time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, mv := range v.s.movements {
		if mv.TenantID != key.TenantID || mv.ProductID != key.ProductID || mv.Type != inventory.MovementIssue {
			continue
		}
		if mv.FromWarehouseID == nil || *mv.FromWarehouseID != key.WarehouseID || mv.MovementDate.Before(since) {
			continue
		}
		total = numeric.Add(total, mv.Quantity)
	}
	return total, nil
}

func (v view) ProductCost(_ context.Context, tenantID, productID int64) (inventory.ProductCost, error) {
	return v.s.products[productKey{tenantID, productID}], nil
}

func (v view) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, mv := range v.s.movements {
		if mv.TenantID != filter.TenantID || mv.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && !touches(mv, filter.WarehouseID) {
			continue
		}
		if len(filter.Types) > 0 && !hasType(filter.Types, mv.Type) {
			continue
		}
		if !filter.From.IsZero() && mv.MovementDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && mv.MovementDate.After(filter.To) {
			continue
		}
		out = append(out, mv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].MovementDate.Equal(out[j].MovementDate) {
			return out[i].MovementDate.After(out[j].MovementDate)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func touches(mv inventory.Movement, warehouseID int64) bool {
	return (mv.FromWarehouseID != nil && *mv.FromWarehouseID == warehouseID) ||
		(mv.ToWarehouseID != nil && *mv.ToWarehouseID == warehouseID)
}

func hasType(types []inventory.MovementType, t inventory.MovementType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func sortItems(items []inventory.StockItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ProductID != items[j].ProductID {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].WarehouseID < items[j].WarehouseID
	})
}

// Keys is an in-memory idempotency store.
type Keys struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewKeys returns an empty key store.
func NewKeys() *Keys {
	return &Keys{seen: make(map[string]struct{})}
}

// CheckAndInsert records key, failing with shared.ErrIdempotencyConflict on reuse.
func (k *Keys) CheckAndInsert(_ context.Context, tenantID int64, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	id := keyID(tenantID, key)
	if _, ok := k.seen[id]; ok {
		return shared.ErrIdempotencyConflict
	}
	k.seen[id] = struct{}{}
	return nil
}

// Delete forgets key.
func (k *Keys) Delete(_ context.Context, tenantID int64, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.seen, keyID(tenantID, key))
	return nil
}

// Has reports whether key is recorded.
func (k *Keys) Has(tenantID int64, key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.seen[keyID(tenantID, key)]
	return ok
}

func keyID(tenantID int64, key string) string {
	return strconv.FormatInt(tenantID, 10) + "/" + key
}
