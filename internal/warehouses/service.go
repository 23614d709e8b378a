package warehouses

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ErrDuplicateCode is returned when the warehouse code is already taken by the tenant.
var ErrDuplicateCode = &shared.Error{Kind: shared.KindInvalidOperation, Message: "warehouse code already exists"}

// Service manages warehouses and the per-organization default.
type Service struct {
	repo      Repository
	validator *validator.Validate
}

// NewService constructs a warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

// Get returns the tenant's warehouse.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.InvalidOperation("invalid warehouse ID %d", id)
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create stores a warehouse. The first warehouse of a tenant+organization
// becomes its default; asking for IsDefault moves the default to the new one.
func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	warehouse.Code = strings.TrimSpace(warehouse.Code)
	warehouse.Name = strings.TrimSpace(warehouse.Name)
	if warehouse.Status == "" {
		warehouse.Status = StatusActive
	}
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	if warehouse.IsDefault && warehouse.Status != StatusActive {
		return Warehouse{}, shared.InvalidOperation("inactive warehouse %s cannot be the default", warehouse.Code)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindDefault(ctx, warehouse.TenantID, warehouse.OrganizationID)
		hasDefault := err == nil
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if !hasDefault && warehouse.Status == StatusActive {
			warehouse.IsDefault = true
		}
		if warehouse.IsDefault && hasDefault {
			if err := tx.ClearDefault(ctx, current.TenantID, current.OrganizationID); err != nil {
				return err
			}
		}
		id, err := tx.Insert(ctx, warehouse)
		if err != nil {
			return err
		}
		warehouse.ID = id
		return nil
	})
	if err != nil {
		return Warehouse{}, err
	}
	return warehouse, nil
}

// Update saves code, name and address changes to an existing warehouse.
func (s *Service) Update(ctx context.Context, warehouse Warehouse) error {
	if warehouse.ID <= 0 {
		return shared.InvalidOperation("invalid warehouse ID %d", warehouse.ID)
	}
	if err := s.validate(warehouse); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.Get(ctx, warehouse.TenantID, warehouse.ID)
		if err != nil {
			return err
		}
		existing.Code = strings.TrimSpace(warehouse.Code)
		existing.Name = strings.TrimSpace(warehouse.Name)
		existing.Address = warehouse.Address
		return tx.Update(ctx, existing)
	})
}

// SetDefault makes the warehouse the single default of its tenant+organization.
func (s *Service) SetDefault(ctx context.Context, tenantID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if w.Status != StatusActive {
			return shared.InvalidOperation("inactive warehouse %s cannot be the default", w.Code)
		}
		if w.IsDefault {
			return nil
		}
		if err := tx.ClearDefault(ctx, w.TenantID, w.OrganizationID); err != nil {
			return err
		}
		w.IsDefault = true
		return tx.Update(ctx, w)
	})
}

// Default resolves the default warehouse for the tenant and organization.
func (s *Service) Default(ctx context.Context, tenantID int64, organizationID *int64) (Warehouse, error) {
	var out Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.FindDefault(ctx, tenantID, organizationID)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

// Activate lets the warehouse accept and issue stock again.
func (s *Service) Activate(ctx context.Context, tenantID, id int64) error {
	return s.setStatus(ctx, tenantID, id, StatusActive)
}

// Deactivate stops the warehouse from accepting or issuing stock. The default
// warehouse must be moved elsewhere first.
func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) error {
	return s.setStatus(ctx, tenantID, id, StatusInactive)
}

func (s *Service) setStatus(ctx context.Context, tenantID, id int64, status Status) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		w, err := tx.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if w.Status == status {
			return nil
		}
		if status == StatusInactive && w.IsDefault {
			return shared.InvalidOperation("default warehouse %s cannot be deactivated", w.Code)
		}
		w.Status = status
		return tx.Update(ctx, w)
	})
}
