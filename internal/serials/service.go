package serials

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ErrDuplicateSerial is returned when the tenant already tracks the serial number.
var ErrDuplicateSerial = &shared.Error{Kind: shared.KindInvalidOperation, Message: "serial number already registered"}

// RepositoryPort abstracts serial number persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID int64, serial string) (SerialNumber, error)
	ListAvailable(ctx context.Context, tenantID, productID, warehouseID int64) ([]SerialNumber, error)
}

// Service moves serialised units through their lifecycle.
type Service struct {
	repo      RepositoryPort
	publisher events.Publisher
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service; publisher is optional.
func NewService(repo RepositoryPort, publisher events.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		validate:  validator.New(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger replaces the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register records a unit as IN_STOCK.
func (s *Service) Register(ctx context.Context, input RegisterInput) (SerialNumber, error) {
	input.Serial = strings.TrimSpace(input.Serial)
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return SerialNumber{}, shared.InvalidOperation("serial number %s is invalid (%s)", strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return SerialNumber{}, shared.InvalidOperation("serial number is invalid: %v", err)
	}
	if input.Cost != nil && input.Cost.Sign() < 0 {
		return SerialNumber{}, shared.InvalidOperation("cost must not be negative, got %s", input.Cost)
	}
	now := s.now()
	sn := SerialNumber{
		TenantID:       input.TenantID,
		Serial:         input.Serial,
		ProductID:      input.ProductID,
		WarehouseID:    input.WarehouseID,
		Location:       strings.TrimSpace(input.Location),
		Status:         StatusInStock,
		Reference:      input.Reference,
		ReceivedDate:   input.ReceivedDate,
		WarrantyMonths: input.WarrantyMonths,
		Notes:          strings.TrimSpace(input.Notes),
		Cost:           input.Cost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sn.ReceivedDate.IsZero() {
		sn.ReceivedDate = now
	}
	if sn.WarrantyMonths > 0 {
		expiry := sn.ReceivedDate.AddDate(0, sn.WarrantyMonths, 0)
		sn.WarrantyExpiry = &expiry
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.Insert(ctx, sn)
		if err != nil {
			return err
		}
		sn = created
		return nil
	})
	return sn, err
}

// Get returns a unit by serial number.
func (s *Service) Get(ctx context.Context, tenantID int64, serial string) (SerialNumber, error) {
	return s.repo.Get(ctx, tenantID, strings.TrimSpace(serial))
}

// Available lists IN_STOCK units of a product in a warehouse.
func (s *Service) Available(ctx context.Context, tenantID, productID, warehouseID int64) ([]SerialNumber, error) {
	return s.repo.ListAvailable(ctx, tenantID, productID, warehouseID)
}

// Allocate reserves an IN_STOCK unit against ref.
func (s *Service) Allocate(ctx context.Context, tenantID int64, serial string, ref inventory.Reference) (SerialNumber, error) {
	sn, err := s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusInStock {
			return shared.InvalidOperation("serial number %s is %s and cannot be allocated", sn.Serial, sn.Status)
		}
		sn.Status = StatusReserved
		sn.Allocation = ref
		return nil
	})
	if err != nil {
		return SerialNumber{}, err
	}
	s.publish(ctx, events.SerialNumberAllocated, sn.TenantID, AllocatedEvent{
		SerialID: sn.ID, Serial: sn.Serial, ProductID: sn.ProductID, WarehouseID: sn.WarehouseID, Reference: ref,
	})
	return sn, nil
}

// Deallocate returns a RESERVED unit to stock.
func (s *Service) Deallocate(ctx context.Context, tenantID int64, serial string) (SerialNumber, error) {
	var released inventory.Reference
	sn, err := s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusReserved {
			return shared.InvalidOperation("serial number %s is %s and cannot be deallocated", sn.Serial, sn.Status)
		}
		released = sn.Allocation
		sn.Status = StatusInStock
		sn.Allocation = inventory.Reference{}
		return nil
	})
	if err != nil {
		return SerialNumber{}, err
	}
	s.publish(ctx, events.SerialNumberDeallocated, sn.TenantID, DeallocatedEvent{
		SerialID: sn.ID, Serial: sn.Serial, ProductID: sn.ProductID, WarehouseID: sn.WarehouseID, Reference: released,
	})
	return sn, nil
}

// MarkSold completes the sale of a RESERVED unit.
func (s *Service) MarkSold(ctx context.Context, tenantID int64, serial string, soldAt time.Time) (SerialNumber, error) {
	if soldAt.IsZero() {
		soldAt = s.now()
	}
	return s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusReserved {
			return shared.InvalidOperation("serial number %s is %s and cannot be sold", sn.Serial, sn.Status)
		}
		sn.Status = StatusSold
		sn.SoldDate = &soldAt
		return nil
	})
}

// Return takes a SOLD unit back from the customer.
func (s *Service) Return(ctx context.Context, tenantID int64, serial, reason string) (SerialNumber, error) {
	reason = strings.TrimSpace(reason)
	return s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusSold {
			return shared.InvalidOperation("serial number %s is %s and cannot be returned", sn.Serial, sn.Status)
		}
		sn.Status = StatusReturned
		if reason != "" {
			sn.appendNote("Returned: " + reason)
		}
		return nil
	})
}

// Restock puts a RETURNED unit back on the shelf, optionally in another warehouse.
func (s *Service) Restock(ctx context.Context, tenantID int64, serial string, warehouseID int64) (SerialNumber, error) {
	return s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusReturned {
			return shared.InvalidOperation("serial number %s is %s and cannot be restocked", sn.Serial, sn.Status)
		}
		sn.Status = StatusInStock
		sn.Allocation = inventory.Reference{}
		sn.SoldDate = nil
		if warehouseID > 0 {
			sn.WarehouseID = warehouseID
		}
		return nil
	})
}

// ScrapDefective writes off an IN_STOCK or RESERVED unit.
func (s *Service) ScrapDefective(ctx context.Context, tenantID int64, serial, reason string) (SerialNumber, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return SerialNumber{}, shared.InvalidOperation("scrap reason required")
	}
	return s.change(ctx, tenantID, serial, func(sn *SerialNumber) error {
		if sn.Status != StatusInStock && sn.Status != StatusReserved {
			return shared.InvalidOperation("serial number %s is %s and cannot be scrapped", sn.Serial, sn.Status)
		}
		sn.Status = StatusScrapped
		sn.Allocation = inventory.Reference{}
		sn.appendNote("Scrapped: " + reason)
		return nil
	})
}

// AllocateBatch allocates each serial in its own transaction, reporting
// failures per serial instead of stopping at the first one.
func (s *Service) AllocateBatch(ctx context.Context, tenantID int64, serials []string, ref inventory.Reference) (BatchResult, error) {
	if len(serials) == 0 {
		return BatchResult{}, shared.InvalidOperation("no serial numbers to allocate")
	}
	var result BatchResult
	for _, serial := range serials {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sn, err := s.Allocate(ctx, tenantID, serial, ref)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Serial: serial, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, sn)
	}
	return result, nil
}

func (s *Service) change(ctx context.Context, tenantID int64, serial string, mutate func(*SerialNumber) error) (SerialNumber, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return SerialNumber{}, shared.InvalidOperation("serial number required")
	}
	var out SerialNumber
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sn, err := tx.GetForUpdate(ctx, tenantID, serial)
		if err != nil {
			return err
		}
		if err := mutate(&sn); err != nil {
			return err
		}
		sn.UpdatedAt = s.now()
		if err := tx.Update(ctx, sn); err != nil {
			return err
		}
		out = sn
		return nil
	})
	return out, err
}

func (s *Service) publish(ctx context.Context, name events.Name, tenantID int64, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.New(name, tenantID, payload)); err != nil {
		s.logger.Warn("publish event", slog.String("event", string(name)), slog.Any("error", err))
	}
}
