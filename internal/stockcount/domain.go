package stockcount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
)

// Status tracks the lifecycle of a physical stock count.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusReconciled Status = "RECONCILED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusReconciled, StatusCancelled},
}

// CanTransition reports whether a count may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Count is a physical count of one warehouse.
type Count struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	Number         string     `json:"count_number"`
	WarehouseID    int64      `json:"warehouse_id"`
	Status         Status     `json:"status"`
	CountDate      time.Time  `json:"count_date"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ReconciledAt   *time.Time `json:"reconciled_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []Item     `json:"items"`
}

// Item is one counted product line.
type Item struct {
	ID        int64  `json:"id"`
	CountID   int64  `json:"count_id"`
	ProductID int64  `json:"product_id"`
	Location  string `json:"location,omitempty"`
	// SystemQuantity and UnitCost are snapshots of the ledger taken when the count starts.
	SystemQuantity  decimal.Decimal  `json:"system_quantity"`
	CountedQuantity *decimal.Decimal `json:"counted_quantity,omitempty"`
	UnitCost        decimal.Decimal  `json:"unit_cost"`
	Variance        decimal.Decimal  `json:"variance"`
	VarianceValue   decimal.Decimal  `json:"variance_value"`
	Notes           string           `json:"notes,omitempty"`
	CountedBy       int64            `json:"counted_by,omitempty"`
	CountedAt       *time.Time       `json:"counted_at,omitempty"`
}

// Counted reports whether a quantity was recorded.
func (i Item) Counted() bool {
	return i.CountedQuantity != nil
}

// recompute derives variance from the counted and system quantities.
func (i *Item) recompute() {
	if i.CountedQuantity == nil {
		i.Variance = decimal.Zero
		i.VarianceValue = decimal.Zero
		return
	}
	i.Variance = numeric.Sub(*i.CountedQuantity, i.SystemQuantity)
	i.VarianceValue = numeric.Mul(i.Variance, i.UnitCost)
}

// Summary totals the variances of a count.
type Summary struct {
	Items              int             `json:"items"`
	Counted            int             `json:"counted"`
	ItemsWithVariance  int             `json:"items_with_variance"`
	TotalVariance      decimal.Decimal `json:"total_variance"`
	TotalVarianceValue decimal.Decimal `json:"total_variance_value"`
}

// Summarize totals the count's items.
func (c Count) Summarize() Summary {
	s := Summary{Items: len(c.Items), TotalVariance: decimal.Zero, TotalVarianceValue: decimal.Zero}
	for _, item := range c.Items {
		if !item.Counted() {
			continue
		}
		s.Counted++
		if !item.Variance.IsZero() {
			s.ItemsWithVariance++
		}
		s.TotalVariance = numeric.Add(s.TotalVariance, item.Variance)
		s.TotalVarianceValue = numeric.Add(s.TotalVarianceValue, item.VarianceValue)
	}
	return s
}

// CreateInput plans a new count.
type CreateInput struct {
	TenantID       int64     `validate:"required,gt=0"`
	OrganizationID *int64    `validate:"omitempty"`
	WarehouseID    int64     `validate:"required,gt=0"`
	CountDate      time.Time `validate:"-"`
	Notes          string    `validate:"max=1000"`
	CreatedBy      int64     `validate:"gte=0"`
}

// AddItemInput adds a product line to a planned count.
type AddItemInput struct {
	TenantID  int64  `validate:"required,gt=0"`
	CountID   int64  `validate:"required,gt=0"`
	ProductID int64  `validate:"required,gt=0"`
	Location  string `validate:"max=100"`
	Notes     string `validate:"max=1000"`
}

// RecordInput records the counted quantity of one item.
type RecordInput struct {
	TenantID  int64           `validate:"required,gt=0"`
	CountID   int64           `validate:"required,gt=0"`
	ItemID    int64           `validate:"required,gt=0"`
	Quantity  decimal.Decimal `validate:"-"`
	Notes     string          `validate:"max=1000"`
	CountedBy int64           `validate:"gte=0"`
}
