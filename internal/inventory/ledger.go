package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
)

// ledger applies stock item mutations inside one transaction. Items are read
// with a row lock so concurrent movements on the same item serialize.
type ledger struct {
	tx            TxRepository
	allowNegative bool
	now           time.Time
	pending       []events.Event
}

func newLedger(tx TxRepository, allowNegative bool, now time.Time) *ledger {
	return &ledger{tx: tx, allowNegative: allowNegative, now: now}
}

// increaseStock creates the item on first receipt, otherwise adds to it.
func (l *ledger) increaseStock(ctx context.Context, key ItemKey, qty decimal.Decimal, unitCost *decimal.Decimal) (StockItem, StockItem, error) {
	item, err := l.tx.EnsureStockItemForUpdate(ctx, key)
	if err != nil {
		return StockItem{}, StockItem{}, err
	}
	before := item
	if err := item.Increase(qty, unitCost); err != nil {
		return StockItem{}, StockItem{}, err
	}
	if err := l.save(ctx, &item); err != nil {
		return StockItem{}, StockItem{}, err
	}
	return before, item, nil
}

// decreaseStock requires an existing item and raises ReorderPointReached when
// available stock crosses the reorder point.
func (l *ledger) decreaseStock(ctx context.Context, key ItemKey, qty decimal.Decimal) (StockItem, StockItem, error) {
	item, err := l.load(ctx, key)
	if err != nil {
		return StockItem{}, StockItem{}, err
	}
	before := item
	if err := item.Decrease(qty, l.allowNegative); err != nil {
		return StockItem{}, StockItem{}, err
	}
	if err := l.save(ctx, &item); err != nil {
		return StockItem{}, StockItem{}, err
	}
	if item.crossedReorderPoint(before) {
		l.pending = append(l.pending, events.New(events.ReorderPointReached, key.TenantID, ReorderPointReachedEvent{
			TenantID:          key.TenantID,
			ProductID:         key.ProductID,
			WarehouseID:       key.WarehouseID,
			AvailableQuantity: item.AvailableQuantity,
			ReorderPoint:      *item.ReorderPoint,
			SuggestedQuantity: SuggestedOrderQuantity(item),
		}))
	}
	return before, item, nil
}

func (l *ledger) reserve(ctx context.Context, key ItemKey, qty decimal.Decimal) (StockItem, StockItem, error) {
	item, err := l.load(ctx, key)
	if err != nil {
		return StockItem{}, StockItem{}, err
	}
	before := item
	if err := item.Reserve(qty); err != nil {
		return StockItem{}, StockItem{}, err
	}
	if err := l.save(ctx, &item); err != nil {
		return StockItem{}, StockItem{}, err
	}
	return before, item, nil
}

func (l *ledger) release(ctx context.Context, key ItemKey, qty decimal.Decimal) (StockItem, StockItem, error) {
	item, err := l.load(ctx, key)
	if err != nil {
		return StockItem{}, StockItem{}, err
	}
	before := item
	if err := item.Release(qty); err != nil {
		return StockItem{}, StockItem{}, err
	}
	if err := l.save(ctx, &item); err != nil {
		return StockItem{}, StockItem{}, err
	}
	return before, item, nil
}

// lockPair row-locks the source and destination of a transfer in warehouse id
// order so opposite transfers between the same warehouses cannot deadlock.
// A missing source is left for decreaseStock to report.
func (l *ledger) lockPair(ctx context.Context, src, dst ItemKey) error {
	if src.WarehouseID < dst.WarehouseID {
		if _, err := l.tx.GetStockItemForUpdate(ctx, src); err != nil && !errors.Is(err, ErrStockItemNotFound) {
			return err
		}
		_, err := l.tx.EnsureStockItemForUpdate(ctx, dst)
		return err
	}
	if _, err := l.tx.EnsureStockItemForUpdate(ctx, dst); err != nil {
		return err
	}
	if _, err := l.tx.GetStockItemForUpdate(ctx, src); err != nil && !errors.Is(err, ErrStockItemNotFound) {
		return err
	}
	return nil
}

func (l *ledger) load(ctx context.Context, key ItemKey) (StockItem, error) {
	item, err := l.tx.GetStockItemForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStockItemNotFound) {
			return StockItem{}, stockItemNotFound(key)
		}
		return StockItem{}, err
	}
	return item, nil
}

func (l *ledger) save(ctx context.Context, item *StockItem) error {
	if err := item.CheckInvariant(); err != nil {
		return err
	}
	item.UpdatedAt = l.now
	return l.tx.UpdateStockItem(ctx, *item)
}
