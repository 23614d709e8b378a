package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceipt brings stock into a warehouse.
	MovementReceipt MovementType = "RECEIPT"
	// MovementIssue takes stock out of a warehouse.
	MovementIssue MovementType = "ISSUE"
	// MovementTransfer moves stock between two warehouses.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjustment corrects the book quantity in either direction.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReserved earmarks available stock.
	MovementReserved MovementType = "RESERVED"
	// MovementReleased returns earmarked stock to available.
	MovementReleased MovementType = "RELEASED"
)

// ReferenceKind names the kind of document a movement originates from.
type ReferenceKind string

const (
	RefNone          ReferenceKind = ""
	RefPurchaseOrder ReferenceKind = "PURCHASE_ORDER"
	RefGoodsReceipt  ReferenceKind = "GOODS_RECEIPT"
	RefSalesOrder    ReferenceKind = "SALES_ORDER"
	RefDelivery      ReferenceKind = "DELIVERY_ORDER"
	RefTransferOrder ReferenceKind = "TRANSFER_ORDER"
	RefStockCount    ReferenceKind = "STOCK_COUNT"
	RefManual        ReferenceKind = "MANUAL"
)

// Reference links a movement back to its originating document.
type Reference struct {
	Kind   ReferenceKind `json:"kind,omitempty"`
	ID     int64         `json:"id,omitempty"`
	Number string        `json:"number,omitempty"`
}

// IsZero reports whether no reference is set.
func (r Reference) IsZero() bool {
	return r.Kind == RefNone && r.ID == 0 && r.Number == ""
}

// ItemKey identifies one stock item.
type ItemKey struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
}

// StockItem is the ledger row for one (tenant, product, warehouse).
type StockItem struct {
	ID                int64
	TenantID          int64
	ProductID         int64
	WarehouseID       int64
	Quantity          decimal.Decimal
	AvailableQuantity decimal.Decimal
	ReservedQuantity  decimal.Decimal
	AverageCost       decimal.Decimal
	ReorderPoint      *decimal.Decimal
	ReorderQuantity   *decimal.Decimal
	MinimumQuantity   *decimal.Decimal
	MaximumQuantity   *decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key returns the item's identifying triple.
func (i StockItem) Key() ItemKey {
	return ItemKey{TenantID: i.TenantID, ProductID: i.ProductID, WarehouseID: i.WarehouseID}
}

// Movement is an immutable audit record of a quantity change.
type Movement struct {
	ID              int64
	TenantID        int64
	ProductID       int64
	FromWarehouseID *int64
	ToWarehouseID   *int64
	Type            MovementType
	Quantity        decimal.Decimal
	Cost            *decimal.Decimal
	Reference       Reference
	MovementDate    time.Time
	Notes           string
	CreatedBy       int64
	CreatedAt       time.Time
}

// MovementInput carries the fields shared by every movement request.
type MovementInput struct {
	TenantID       int64            `validate:"required,gt=0"`
	OrganizationID *int64           `validate:"omitempty"`
	ProductID      int64            `validate:"required,gt=0"`
	Quantity       decimal.Decimal  `validate:"-"`
	UnitCost       *decimal.Decimal `validate:"-"`
	Reference      Reference        `validate:"-"`
	MovementDate   time.Time        `validate:"-"`
	Notes          string           `validate:"max=1000"`
	CreatedBy      int64            `validate:"gte=0"`
	// IdempotencyKey, when set, makes a retried request fail with
	// shared.ErrIdempotencyConflict instead of posting twice.
	IdempotencyKey string `validate:"max=200"`
}

// ReceiptInput describes goods received into a warehouse.
type ReceiptInput struct {
	MovementInput
	WarehouseID int64 `validate:"required,gt=0"`
}

// IssueInput describes goods leaving a warehouse.
type IssueInput struct {
	MovementInput
	WarehouseID int64 `validate:"required,gt=0"`
}

// TransferInput describes goods moved between warehouses.
type TransferInput struct {
	MovementInput
	FromWarehouseID int64 `validate:"required,gt=0"`
	ToWarehouseID   int64 `validate:"required,gt=0"`
}

// AdjustmentInput describes a signed book correction; Quantity carries the sign.
type AdjustmentInput struct {
	MovementInput
	WarehouseID int64 `validate:"required,gt=0"`
}

// ReservationInput describes a reservation or its release.
type ReservationInput struct {
	MovementInput
	WarehouseID int64 `validate:"required,gt=0"`
}

// ThresholdsInput replaces the replenishment thresholds of a stock item.
type ThresholdsInput struct {
	Key             ItemKey
	ReorderPoint    *decimal.Decimal
	ReorderQuantity *decimal.Decimal
	MinimumQuantity *decimal.Decimal
	MaximumQuantity *decimal.Decimal
}

// Result reports the committed movement and the ledger rows it touched.
type Result struct {
	Movement    Movement
	Source      *StockItem
	Destination *StockItem
}

// StockItemFilter selects stock items for aggregate reads.
type StockItemFilter struct {
	TenantID    int64
	WarehouseID int64
	ProductID   int64
}

// MovementFilter selects movements for history reads.
type MovementFilter struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
	Types       []MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// ProductCost carries the costs a product collaborator exposes.
type ProductCost struct {
	StandardCost *decimal.Decimal
	Cost         *decimal.Decimal
}
