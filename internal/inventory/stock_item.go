package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// StockLevels is a point-in-time copy of an item's quantities and cost.
type StockLevels struct {
	Quantity          decimal.Decimal `json:"quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AverageCost       decimal.Decimal `json:"average_cost"`
}

// NewStockItem returns an empty item for key.
func NewStockItem(key ItemKey) StockItem {
	return StockItem{
		TenantID:          key.TenantID,
		ProductID:         key.ProductID,
		WarehouseID:       key.WarehouseID,
		Quantity:          decimal.Zero,
		AvailableQuantity: decimal.Zero,
		ReservedQuantity:  decimal.Zero,
		AverageCost:       decimal.Zero,
	}
}

// Levels snapshots the item's quantities.
func (i StockItem) Levels() StockLevels {
	return StockLevels{
		Quantity:          i.Quantity,
		AvailableQuantity: i.AvailableQuantity,
		ReservedQuantity:  i.ReservedQuantity,
		AverageCost:       i.AverageCost,
	}
}

// Value is quantity × average cost.
func (i StockItem) Value() decimal.Decimal {
	return numeric.Mul(i.Quantity, i.AverageCost)
}

// CheckInvariant verifies quantity == available + reserved and reserved >= 0.
func (i StockItem) CheckInvariant() error {
	if !i.Quantity.Equal(numeric.Add(i.AvailableQuantity, i.ReservedQuantity)) {
		return shared.InvalidOperation("stock item %d/%d: quantity %s != available %s + reserved %s",
			i.ProductID, i.WarehouseID, i.Quantity, i.AvailableQuantity, i.ReservedQuantity)
	}
	if i.ReservedQuantity.Sign() < 0 {
		return shared.InvalidOperation("stock item %d/%d: reserved quantity %s is negative", i.ProductID, i.WarehouseID, i.ReservedQuantity)
	}
	return nil
}

// Increase adds qty to on-hand and available. A positive unit cost folds into
// the weighted average cost; a missing or zero cost leaves it unchanged.
func (i *StockItem) Increase(qty decimal.Decimal, unitCost *decimal.Decimal) error {
	if !numeric.Positive(qty) {
		return shared.InvalidOperation("increase quantity must be positive, got %s", qty)
	}
	oldQty := i.Quantity
	newQty := numeric.Add(oldQty, qty)
	if unitCost != nil && numeric.Positive(*unitCost) {
		if oldQty.Sign() <= 0 {
			// nothing on hand to blend with
			i.AverageCost = *unitCost
		} else {
			total := numeric.Add(numeric.Mul(oldQty, i.AverageCost), numeric.Mul(qty, *unitCost))
			avg, err := numeric.Div(total, newQty)
			if err != nil {
				return err
			}
			i.AverageCost = avg
		}
	}
	i.Quantity = newQty
	i.AvailableQuantity = numeric.Add(i.AvailableQuantity, qty)
	return i.CheckInvariant()
}

// Decrease removes qty from on-hand and available. Unless allowNegative is set
// neither may drop below zero.
func (i *StockItem) Decrease(qty decimal.Decimal, allowNegative bool) error {
	if !numeric.Positive(qty) {
		return shared.InvalidOperation("decrease quantity must be positive, got %s", qty)
	}
	newQty := numeric.Sub(i.Quantity, qty)
	newAvailable := numeric.Sub(i.AvailableQuantity, qty)
	if !allowNegative {
		if newQty.Sign() < 0 {
			return shared.InsufficientStock("insufficient stock for product %d in warehouse %d: requested %s, on hand %s",
				i.ProductID, i.WarehouseID, qty, i.Quantity)
		}
		if newAvailable.Sign() < 0 {
			return shared.InsufficientStock("insufficient available stock for product %d in warehouse %d: requested %s, available %s (%s reserved)",
				i.ProductID, i.WarehouseID, qty, i.AvailableQuantity, i.ReservedQuantity)
		}
	}
	i.Quantity = newQty
	i.AvailableQuantity = newAvailable
	return i.CheckInvariant()
}

// Reserve moves qty from available to reserved.
func (i *StockItem) Reserve(qty decimal.Decimal) error {
	if !numeric.Positive(qty) {
		return shared.InvalidOperation("reserve quantity must be positive, got %s", qty)
	}
	if i.AvailableQuantity.LessThan(qty) {
		return shared.InsufficientStock("insufficient available stock for product %d in warehouse %d: requested %s, available %s",
			i.ProductID, i.WarehouseID, qty, i.AvailableQuantity)
	}
	i.AvailableQuantity = numeric.Sub(i.AvailableQuantity, qty)
	i.ReservedQuantity = numeric.Add(i.ReservedQuantity, qty)
	return i.CheckInvariant()
}

// Release moves qty from reserved back to available. Releasing more than is
// reserved is rejected so the quantity identity cannot drift.
func (i *StockItem) Release(qty decimal.Decimal) error {
	if !numeric.Positive(qty) {
		return shared.InvalidOperation("release quantity must be positive, got %s", qty)
	}
	if i.ReservedQuantity.LessThan(qty) {
		return shared.InvalidOperation("cannot release %s of product %d in warehouse %d: only %s reserved",
			qty, i.ProductID, i.WarehouseID, i.ReservedQuantity)
	}
	i.ReservedQuantity = numeric.Sub(i.ReservedQuantity, qty)
	i.AvailableQuantity = numeric.Add(i.AvailableQuantity, qty)
	return i.CheckInvariant()
}

// crossedReorderPoint reports whether available went from above the reorder
// point to at or below it between before and i.
func (i StockItem) crossedReorderPoint(before StockItem) bool {
	if i.ReorderPoint == nil {
		return false
	}
	rp := *i.ReorderPoint
	return before.AvailableQuantity.GreaterThan(rp) && i.AvailableQuantity.LessThanOrEqual(rp)
}
