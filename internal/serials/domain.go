package serials

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// Status tracks where a serialised unit is in its life.
type Status string

const (
	StatusInStock  Status = "IN_STOCK"
	StatusReserved Status = "RESERVED"
	StatusSold     Status = "SOLD"
	StatusReturned Status = "RETURNED"
	StatusScrapped Status = "SCRAPPED"
)

// SerialNumber is one individually tracked unit. Allocation is the document
// the unit is reserved or sold against.
type SerialNumber struct {
	ID             int64               `json:"id"`
	TenantID       int64               `json:"tenant_id"`
	Serial         string              `json:"serial_number"`
	ProductID      int64               `json:"product_id"`
	WarehouseID    int64               `json:"warehouse_id"`
	Location       string              `json:"location,omitempty"`
	Status         Status              `json:"status"`
	Reference      inventory.Reference `json:"reference"`
	Allocation     inventory.Reference `json:"allocation"`
	ReceivedDate   time.Time           `json:"received_date"`
	SoldDate       *time.Time          `json:"sold_date,omitempty"`
	WarrantyMonths int                 `json:"warranty_months,omitempty"`
	WarrantyExpiry *time.Time          `json:"warranty_expiry,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	Cost           *decimal.Decimal    `json:"cost,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// InWarranty reports whether at falls on or before the warranty expiry.
func (s SerialNumber) InWarranty(at time.Time) bool {
	return s.WarrantyExpiry != nil && !at.After(*s.WarrantyExpiry)
}

func (s *SerialNumber) appendNote(line string) {
	if s.Notes == "" {
		s.Notes = line
		return
	}
	s.Notes += "\n" + line
}

// RegisterInput records a newly received unit.
type RegisterInput struct {
	TenantID       int64               `validate:"required,gt=0"`
	Serial         string              `validate:"required,max=100"`
	ProductID      int64               `validate:"required,gt=0"`
	WarehouseID    int64               `validate:"required,gt=0"`
	Location       string              `validate:"max=100"`
	Reference      inventory.Reference `validate:"-"`
	ReceivedDate   time.Time           `validate:"-"`
	WarrantyMonths int                 `validate:"gte=0,lte=600"`
	Notes          string              `validate:"max=1000"`
	Cost           *decimal.Decimal    `validate:"-"`
}

// BatchFailure is one serial a batch could not process.
type BatchFailure struct {
	Serial string `json:"serial_number"`
	Error  string `json:"error"`
}

// BatchResult reports per-serial outcomes of a batch operation.
type BatchResult struct {
	Succeeded []SerialNumber `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// AllocatedEvent is published when a unit is reserved against a document.
type AllocatedEvent struct {
	SerialID    int64               `json:"serial_id"`
	Serial      string              `json:"serial_number"`
	ProductID   int64               `json:"product_id"`
	WarehouseID int64               `json:"warehouse_id"`
	Reference   inventory.Reference `json:"reference"`
}

// DeallocatedEvent is published when a reservation is undone.
type DeallocatedEvent struct {
	SerialID    int64               `json:"serial_id"`
	Serial      string              `json:"serial_number"`
	ProductID   int64               `json:"product_id"`
	WarehouseID int64               `json:"warehouse_id"`
	Reference   inventory.Reference `json:"reference"`
}
