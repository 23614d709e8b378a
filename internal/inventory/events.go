package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
)

// StockChange records the levels of one warehouse before and after a movement.
type StockChange struct {
	WarehouseID int64       `json:"warehouse_id"`
	Before      StockLevels `json:"before"`
	After       StockLevels `json:"after"`
}

// MovementPostedEvent is the payload of every Stock{Received,Issued,...} event.
type MovementPostedEvent struct {
	MovementID      int64            `json:"movement_id"`
	Type            MovementType     `json:"type"`
	TenantID        int64            `json:"tenant_id"`
	ProductID       int64            `json:"product_id"`
	FromWarehouseID *int64           `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int64           `json:"to_warehouse_id,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	Reference       Reference        `json:"reference"`
	MovementDate    time.Time        `json:"movement_date"`
	CreatedBy       int64            `json:"created_by"`
	Changes         []StockChange    `json:"changes"`
}

// ReorderPointReachedEvent is raised when available stock falls to the reorder point.
type ReorderPointReachedEvent struct {
	TenantID          int64           `json:"tenant_id"`
	ProductID         int64           `json:"product_id"`
	WarehouseID       int64           `json:"warehouse_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	ReorderPoint      decimal.Decimal `json:"reorder_point"`
	SuggestedQuantity decimal.Decimal `json:"suggested_quantity"`
}

// StockValueChangedEvent carries old and new valuation of an item after a recalculation.
type StockValueChangedEvent struct {
	TenantID       int64           `json:"tenant_id"`
	ProductID      int64           `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	Method         ValuationMethod `json:"method"`
	Quantity       decimal.Decimal `json:"quantity"`
	OldAverageCost decimal.Decimal `json:"old_average_cost"`
	NewAverageCost decimal.Decimal `json:"new_average_cost"`
	OldValue       decimal.Decimal `json:"old_value"`
	NewValue       decimal.Decimal `json:"new_value"`
}

func movementEventName(t MovementType) events.Name {
	switch t {
	case MovementReceipt:
		return events.StockReceived
	case MovementIssue:
		return events.StockIssued
	case MovementTransfer:
		return events.StockTransferred
	case MovementAdjustment:
		return events.StockAdjusted
	case MovementReserved:
		return events.StockReserved
	case MovementReleased:
		return events.StockReleased
	default:
		return events.Name("inventory." + string(t))
	}
}
