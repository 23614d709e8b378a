package warehouses

import (
	"time"
)

// Status is the operational state of a warehouse.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Warehouse represents a warehouse entity
type Warehouse struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenant_id" validate:"required,gt=0"`
	OrganizationID *int64    `json:"organization_id,omitempty"`
	Code           string    `json:"code" validate:"required,max=32"`
	Name           string    `json:"name" validate:"required,max=128"`
	Address        string    `json:"address"`
	Status         Status    `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (w Warehouse) CanAcceptStock() bool {
	return w.Status == StatusActive
}

func (w Warehouse) CanIssueStock() bool {
	return w.Status == StatusActive
}

func sameOrganization(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
