package stockcount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/locks"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// DefaultNumberPrefix prefixes generated count numbers when none is configured.
const DefaultNumberPrefix = "SC"

// RepositoryPort abstracts count persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Count, error)
}

// NumberGenerator hands out count numbers.
type NumberGenerator interface {
	Next(ctx context.Context, tenantID int64, prefix string) (string, error)
}

// StockReader reads the ledger row a count line is compared against.
type StockReader interface {
	GetStockItem(ctx context.Context, key inventory.ItemKey) (inventory.StockItem, error)
}

// Adjuster posts the corrections a reconciliation produces. within runs in the
// same transaction as the adjustments and its failure rolls them back.
type Adjuster interface {
	ProcessAdjustments(ctx context.Context, inputs []inventory.AdjustmentInput, within func(context.Context) error) ([]inventory.Result, error)
}

// Locker serializes reconciliation of one count across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Config groups count settings.
type Config struct {
	NumberPrefix string
}

// Service drives stock counts through their lifecycle.
type Service struct {
	repo      RepositoryPort
	numbers   NumberGenerator
	stock     StockReader
	adjuster  Adjuster
	locker    Locker
	publisher events.Publisher
	cfg       Config
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. adjuster is only needed for auto-adjusting
// reconciliations; locker and publisher are optional.
func NewService(repo RepositoryPort, numbers NumberGenerator, stock StockReader, adjuster Adjuster, cfg Config, publisher events.Publisher) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = DefaultNumberPrefix
	}
	return &Service{
		repo:      repo,
		numbers:   numbers,
		stock:     stock,
		adjuster:  adjuster,
		publisher: publisher,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithLocker guards reconciliations with locker.
func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
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

// Get returns a count with its items.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Count, error) {
	if id <= 0 {
		return Count{}, shared.InvalidOperation("invalid stock count ID %d", id)
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create plans a new count for a warehouse.
func (s *Service) Create(ctx context.Context, input CreateInput) (Count, error) {
	if err := s.check(input); err != nil {
		return Count{}, err
	}
	number, err := s.numbers.Next(ctx, input.TenantID, s.cfg.NumberPrefix)
	if err != nil {
		return Count{}, fmt.Errorf("stockcount: next number: %w", err)
	}
	now := s.now()
	count := Count{
		TenantID:       input.TenantID,
		OrganizationID: input.OrganizationID,
		Number:         number,
		WarehouseID:    input.WarehouseID,
		Status:         StatusPlanned,
		CountDate:      input.CountDate,
		Notes:          strings.TrimSpace(input.Notes),
		CreatedBy:      input.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if count.CountDate.IsZero() {
		count.CountDate = now
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.Insert(ctx, count)
		if err != nil {
			return err
		}
		count = created
		return nil
	})
	return count, err
}

// AddItem adds a product line while the count is still planned.
func (s *Service) AddItem(ctx context.Context, input AddItemInput) (Item, error) {
	if err := s.check(input); err != nil {
		return Item{}, err
	}
	location := strings.TrimSpace(input.Location)
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		count, err := tx.GetForUpdate(ctx, input.TenantID, input.CountID)
		if err != nil {
			return err
		}
		if count.Status != StatusPlanned {
			return shared.InvalidOperation("items can only be added to a planned count, %s is %s", count.Number, count.Status)
		}
		for _, existing := range count.Items {
			if existing.ProductID == input.ProductID && existing.Location == location {
				return shared.InvalidOperation("product %d at location %q is already on count %s", input.ProductID, location, count.Number)
			}
		}
		created, err := tx.InsertItem(ctx, Item{
			CountID:   count.ID,
			ProductID: input.ProductID,
			Location:  location,
			Notes:     strings.TrimSpace(input.Notes),
		})
		if err != nil {
			return err
		}
		item = created
		return nil
	})
	return item, err
}

// Start snapshots the system quantity and unit cost of every item.
func (s *Service) Start(ctx context.Context, tenantID, id int64) (Count, error) {
	var count Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.transition(ctx, tx, tenantID, id, StatusInProgress)
		if err != nil {
			return err
		}
		if len(current.Items) == 0 {
			return shared.InvalidOperation("stock count %s has no items", current.Number)
		}
		for i := range current.Items {
			item := &current.Items[i]
			key := inventory.ItemKey{TenantID: tenantID, ProductID: item.ProductID, WarehouseID: current.WarehouseID}
			stock, err := s.stock.GetStockItem(ctx, key)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				item.SystemQuantity = numeric.Zero
				item.UnitCost = numeric.Zero
			case err != nil:
				return fmt.Errorf("stockcount: snapshot product %d: %w", item.ProductID, err)
			default:
				item.SystemQuantity = stock.Quantity
				item.UnitCost = stock.AverageCost
			}
			item.recompute()
			if err := tx.UpdateItem(ctx, *item); err != nil {
				return err
			}
		}
		now := s.now()
		current.StartedAt = &now
		if err := s.save(ctx, tx, &current); err != nil {
			return err
		}
		count = current
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.publish(ctx, events.StockCountStarted, count.TenantID, StartedEvent{
		CountID:     count.ID,
		CountNumber: count.Number,
		WarehouseID: count.WarehouseID,
		Items:       len(count.Items),
	})
	return count, nil
}

// RecordCount stores a counted quantity and recomputes the item's variance.
func (s *Service) RecordCount(ctx context.Context, input RecordInput) (Item, error) {
	if err := s.check(input); err != nil {
		return Item{}, err
	}
	if input.Quantity.Sign() < 0 {
		return Item{}, shared.InvalidOperation("counted quantity must not be negative, got %s", input.Quantity)
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		count, err := tx.GetForUpdate(ctx, input.TenantID, input.CountID)
		if err != nil {
			return err
		}
		if count.Status != StatusInProgress {
			return shared.InvalidOperation("counts can only be recorded while %s is in progress, it is %s", count.Number, count.Status)
		}
		idx := -1
		for i := range count.Items {
			if count.Items[i].ID == input.ItemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return shared.NotFound("stock count item", input.ItemID)
		}
		now := s.now()
		current := count.Items[idx]
		current.CountedQuantity = numeric.Ptr(numeric.Round(input.Quantity))
		current.CountedBy = input.CountedBy
		current.CountedAt = &now
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			current.Notes = notes
		}
		current.recompute()
		if err := tx.UpdateItem(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	return item, err
}

// Complete closes counting once every item has a counted quantity.
func (s *Service) Complete(ctx context.Context, tenantID, id int64) (Count, error) {
	var count Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.transition(ctx, tx, tenantID, id, StatusCompleted)
		if err != nil {
			return err
		}
		var missing []string
		for i := range current.Items {
			item := &current.Items[i]
			if !item.Counted() {
				missing = append(missing, fmt.Sprintf("%d", item.ProductID))
				continue
			}
			item.recompute()
			if err := tx.UpdateItem(ctx, *item); err != nil {
				return err
			}
		}
		if len(missing) > 0 {
			return shared.InvalidOperation("stock count %s has uncounted products: %s", current.Number, strings.Join(missing, ", "))
		}
		now := s.now()
		current.CompletedAt = &now
		if err := s.save(ctx, tx, &current); err != nil {
			return err
		}
		count = current
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	summary := count.Summarize()
	s.publish(ctx, events.StockCountCompleted, count.TenantID, CompletedEvent{
		CountID:            count.ID,
		CountNumber:        count.Number,
		WarehouseID:        count.WarehouseID,
		ItemsWithVariance:  summary.ItemsWithVariance,
		TotalVarianceValue: summary.TotalVarianceValue,
	})
	return count, nil
}

// ReconcileInput closes a completed count.
type ReconcileInput struct {
	TenantID int64
	CountID  int64
	// AutoAdjust posts one ADJUSTMENT per item with a non-zero variance.
	AutoAdjust   bool
	ReconciledBy int64
}

// ReconcileResult reports what a reconciliation posted.
type ReconcileResult struct {
	Count       Count
	Adjustments []inventory.Movement
}

// Reconcile closes a completed count, optionally correcting the ledger. The
// adjustments and the move to RECONCILED commit in one transaction: when any
// line fails the ledger and the count are left as they were.
func (s *Service) Reconcile(ctx context.Context, input ReconcileInput) (ReconcileResult, error) {
	if input.AutoAdjust && s.adjuster == nil {
		return ReconcileResult{}, shared.InvalidOperation("auto adjustment is not configured")
	}
	var result ReconcileResult
	run := func(ctx context.Context) error {
		var err error
		result, err = s.reconcile(ctx, input)
		return err
	}
	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.StockCountLockKey(input.TenantID, input.CountID), run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, locks.ErrNotObtained) {
		return ReconcileResult{}, shared.InvalidOperation("stock count %d is already being reconciled", input.CountID)
	}
	if err != nil {
		return ReconcileResult{}, err
	}
	s.publish(ctx, events.StockCountReconciled, result.Count.TenantID, ReconciledEvent{
		CountID:      result.Count.ID,
		CountNumber:  result.Count.Number,
		WarehouseID:  result.Count.WarehouseID,
		AutoAdjusted: input.AutoAdjust,
		Adjustments:  len(result.Adjustments),
	})
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, input ReconcileInput) (ReconcileResult, error) {
	count, err := s.repo.Get(ctx, input.TenantID, input.CountID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if !CanTransition(count.Status, StatusReconciled) {
		return ReconcileResult{}, invalidTransition(count, StatusReconciled)
	}
	var adjustments []inventory.AdjustmentInput
	if input.AutoAdjust {
		for _, item := range count.Items {
			if !item.Counted() || item.Variance.IsZero() {
				continue
			}
			adjustments = append(adjustments, s.adjustment(count, item, input.ReconciledBy))
		}
	}

	var result ReconcileResult
	finish := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := s.transition(ctx, tx, input.TenantID, input.CountID, StatusReconciled)
			if err != nil {
				return err
			}
			now := s.now()
			current.ReconciledAt = &now
			if err := s.save(ctx, tx, &current); err != nil {
				return err
			}
			result.Count = current
			return nil
		})
	}
	if len(adjustments) == 0 {
		if err := finish(ctx); err != nil {
			return ReconcileResult{}, err
		}
		return result, nil
	}
	posted, err := s.adjuster.ProcessAdjustments(ctx, adjustments, finish)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("stockcount: reconcile %s: %w", count.Number, err)
	}
	for _, res := range posted {
		result.Adjustments = append(result.Adjustments, res.Movement)
	}
	return result, nil
}

func (s *Service) adjustment(count Count, item Item, actor int64) inventory.AdjustmentInput {
	in := inventory.AdjustmentInput{
		MovementInput: inventory.MovementInput{
			TenantID:       count.TenantID,
			OrganizationID: count.OrganizationID,
			ProductID:      item.ProductID,
			Quantity:       item.Variance,
			Reference:      inventory.Reference{Kind: inventory.RefStockCount, ID: count.ID, Number: count.Number},
			MovementDate:   s.now(),
			Notes:          fmt.Sprintf("Stock count %s variance", count.Number),
			CreatedBy:      actor,
			IdempotencyKey: AdjustmentKey(count.ID, item.ID),
		},
		WarehouseID: count.WarehouseID,
	}
	if item.Variance.Sign() > 0 && item.UnitCost.Sign() > 0 {
		in.UnitCost = numeric.Ptr(item.UnitCost)
	}
	return in
}

// AdjustmentKey is the idempotency key of the adjustment posted for one count item.
func AdjustmentKey(countID, itemID int64) string {
	return fmt.Sprintf("stockcount:%d:item:%d", countID, itemID)
}

// Cancel abandons a count that has not been reconciled, appending reason to its notes.
func (s *Service) Cancel(ctx context.Context, tenantID, id int64, reason string) (Count, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Count{}, shared.InvalidOperation("cancellation reason required")
	}
	var count Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.transition(ctx, tx, tenantID, id, StatusCancelled)
		if err != nil {
			return err
		}
		line := "Cancelled: " + reason
		if current.Notes == "" {
			current.Notes = line
		} else {
			current.Notes += "\n" + line
		}
		if err := s.save(ctx, tx, &current); err != nil {
			return err
		}
		count = current
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.publish(ctx, events.StockCountCancelled, count.TenantID, CancelledEvent{
		CountID:     count.ID,
		CountNumber: count.Number,
		Reason:      reason,
	})
	return count, nil
}

// transition locks the count and moves it to next, leaving the caller to save it.
func (s *Service) transition(ctx context.Context, tx TxRepository, tenantID, id int64, next Status) (Count, error) {
	count, err := tx.GetForUpdate(ctx, tenantID, id)
	if err != nil {
		return Count{}, err
	}
	if !CanTransition(count.Status, next) {
		return Count{}, invalidTransition(count, next)
	}
	count.Status = next
	return count, nil
}

func (s *Service) save(ctx context.Context, tx TxRepository, count *Count) error {
	count.UpdatedAt = s.now()
	return tx.UpdateHeader(ctx, *count)
}

func (s *Service) publish(ctx context.Context, name events.Name, tenantID int64, payload any) {
	if s.publisher == nil {
		return
	}
	evt := events.New(name, tenantID, payload)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish event", slog.String("event", string(name)), slog.Any("error", err))
	}
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return shared.InvalidOperation("stock count %s is invalid (%s)", strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return shared.InvalidOperation("stock count request is invalid: %v", err)
	}
	return nil
}

func invalidTransition(count Count, next Status) error {
	return shared.InvalidOperation("stock count %s cannot move from %s to %s", count.Number, count.Status, next)
}
