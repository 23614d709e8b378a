package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	idempotencyModule    = "inventory"
	defaultMovementLimit = 200
	maxMovementLimit     = 1000
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithSnapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort records request keys so retried movements are not posted twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// ServiceConfig groups tenant level settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	// ValuationLayerLimit caps how many receipt layers FIFO/LIFO read; 0 reads all.
	ValuationLayerLimit    int
	DefaultValuationMethod ValuationMethod
}

// Service processes stock movements.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	publisher   events.Publisher
	cfg         ServiceConfig
	validate    *validator.Validate
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
}

// NewService builds Service. audit, idem and publisher are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, publisher events.Publisher) *Service {
	if cfg.DefaultValuationMethod == "" {
		cfg.DefaultValuationMethod = MethodWeightedAverage
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		publisher:   publisher,
		cfg:         cfg,
		validate:    validator.New(),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger replaces the logger used for post-commit failures.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithMetrics attaches movement counters.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Config returns the settings the service was built with.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// ProcessReceipt posts goods received into a warehouse.
func (s *Service) ProcessReceipt(ctx context.Context, input ReceiptInput) (Result, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return Result{}, s.reject(MovementReceipt, err)
	}
	if err := requirePositive(input.Quantity); err != nil {
		return Result{}, s.reject(MovementReceipt, err)
	}
	if err := checkUnitCost(input.UnitCost); err != nil {
		return Result{}, s.reject(MovementReceipt, err)
	}
	return s.post(ctx, MovementReceipt, input.MovementInput, func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		if err := requireAccepting(ctx, l.tx, input.TenantID, input.WarehouseID); err != nil {
			return Result{}, nil, err
		}
		key := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID}
		before, after, err := l.increaseStock(ctx, key, input.Quantity, input.UnitCost)
		if err != nil {
			return Result{}, nil, err
		}
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementReceipt, input.MovementInput, nil, &input.WarehouseID, input.Quantity, input.UnitCost))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Destination: &after}, []StockChange{change(before, after)}, nil
	})
}

// ProcessIssue posts goods leaving a warehouse. The movement is costed at the
// source's average cost.
func (s *Service) ProcessIssue(ctx context.Context, input IssueInput) (Result, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return Result{}, s.reject(MovementIssue, err)
	}
	if err := requirePositive(input.Quantity); err != nil {
		return Result{}, s.reject(MovementIssue, err)
	}
	return s.post(ctx, MovementIssue, input.MovementInput, func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		if err := requireIssuing(ctx, l.tx, input.TenantID, input.WarehouseID); err != nil {
			return Result{}, nil, err
		}
		key := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID}
		before, after, err := l.decreaseStock(ctx, key, input.Quantity)
		if err != nil {
			return Result{}, nil, err
		}
		cost := before.AverageCost
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementIssue, input.MovementInput, &input.WarehouseID, nil, input.Quantity, &cost))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Source: &after}, []StockChange{change(before, after)}, nil
	})
}

// ProcessTransfer moves stock between two warehouses as one TRANSFER movement.
// Without an explicit unit cost the destination receives the source's average cost.
func (s *Service) ProcessTransfer(ctx context.Context, input TransferInput) (Result, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return Result{}, s.reject(MovementTransfer, err)
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Result{}, s.reject(MovementTransfer, shared.InvalidOperation("cannot transfer product %d to the same warehouse %d", input.ProductID, input.FromWarehouseID))
	}
	if err := requirePositive(input.Quantity); err != nil {
		return Result{}, s.reject(MovementTransfer, err)
	}
	if err := checkUnitCost(input.UnitCost); err != nil {
		return Result{}, s.reject(MovementTransfer, err)
	}
	return s.post(ctx, MovementTransfer, input.MovementInput, func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		if err := requireIssuing(ctx, l.tx, input.TenantID, input.FromWarehouseID); err != nil {
			return Result{}, nil, err
		}
		if err := requireAccepting(ctx, l.tx, input.TenantID, input.ToWarehouseID); err != nil {
			return Result{}, nil, err
		}
		src := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.FromWarehouseID}
		dst := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.ToWarehouseID}
		if err := l.lockPair(ctx, src, dst); err != nil {
			return Result{}, nil, err
		}
		srcBefore, srcAfter, err := l.decreaseStock(ctx, src, input.Quantity)
		if err != nil {
			return Result{}, nil, err
		}
		cost := srcBefore.AverageCost
		if input.UnitCost != nil {
			cost = *input.UnitCost
		}
		dstBefore, dstAfter, err := l.increaseStock(ctx, dst, input.Quantity, &cost)
		if err != nil {
			return Result{}, nil, err
		}
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementTransfer, input.MovementInput, &input.FromWarehouseID, &input.ToWarehouseID, input.Quantity, &cost))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Source: &srcAfter, Destination: &dstAfter},
			[]StockChange{change(srcBefore, srcAfter), change(dstBefore, dstAfter)}, nil
	})
}

// ProcessAdjustment posts a signed book correction. The movement stores the
// magnitude; to_warehouse marks an increase and from_warehouse a decrease.
func (s *Service) ProcessAdjustment(ctx context.Context, input AdjustmentInput) (Result, error) {
	p, err := s.adjustmentPosting(input)
	if err != nil {
		return Result{}, s.reject(MovementAdjustment, err)
	}
	results, err := s.postAll(ctx, []posting{p}, nil)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ProcessAdjustments posts every input in a single transaction. within, when
// set, runs inside that transaction after the last adjustment; its ctx carries
// the transaction so repositories sharing the pool join it. Either every
// adjustment and the work of within commit, or nothing does.
func (s *Service) ProcessAdjustments(ctx context.Context, inputs []AdjustmentInput, within func(context.Context) error) ([]Result, error) {
	postings := make([]posting, 0, len(inputs))
	for _, input := range inputs {
		p, err := s.adjustmentPosting(input)
		if err != nil {
			return nil, s.reject(MovementAdjustment, fmt.Errorf("adjust product %d: %w", input.ProductID, err))
		}
		p.label = fmt.Sprintf("adjust product %d", input.ProductID)
		postings = append(postings, p)
	}
	return s.postAll(ctx, postings, within)
}

func (s *Service) adjustmentPosting(input AdjustmentInput) (posting, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return posting{}, err
	}
	if input.Quantity.IsZero() {
		return posting{}, shared.InvalidOperation("adjustment quantity must not be zero")
	}
	if err := checkUnitCost(input.UnitCost); err != nil {
		return posting{}, err
	}
	increase := input.Quantity.Sign() > 0
	qty := numeric.Abs(input.Quantity)
	apply := func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		key := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID}
		if increase {
			before, after, err := l.increaseStock(ctx, key, qty, input.UnitCost)
			if err != nil {
				return Result{}, nil, err
			}
			mv, err := l.tx.InsertMovement(ctx, s.movement(MovementAdjustment, input.MovementInput, nil, &input.WarehouseID, qty, input.UnitCost))
			if err != nil {
				return Result{}, nil, err
			}
			return Result{Movement: mv, Destination: &after}, []StockChange{change(before, after)}, nil
		}
		before, after, err := l.decreaseStock(ctx, key, qty)
		if err != nil {
			return Result{}, nil, err
		}
		cost := before.AverageCost
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementAdjustment, input.MovementInput, &input.WarehouseID, nil, qty, &cost))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Source: &after}, []StockChange{change(before, after)}, nil
	}
	return posting{mt: MovementAdjustment, in: input.MovementInput, apply: apply}, nil
}

// ReserveStock earmarks available stock.
func (s *Service) ReserveStock(ctx context.Context, input ReservationInput) (Result, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return Result{}, s.reject(MovementReserved, err)
	}
	if err := requirePositive(input.Quantity); err != nil {
		return Result{}, s.reject(MovementReserved, err)
	}
	return s.post(ctx, MovementReserved, input.MovementInput, func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		key := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID}
		before, after, err := l.reserve(ctx, key, input.Quantity)
		if err != nil {
			return Result{}, nil, err
		}
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementReserved, input.MovementInput, &input.WarehouseID, nil, input.Quantity, nil))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Source: &after}, []StockChange{change(before, after)}, nil
	})
}

// ReleaseStock returns reserved stock to available.
func (s *Service) ReleaseStock(ctx context.Context, input ReservationInput) (Result, error) {
	if err := s.check(input, input.MovementInput); err != nil {
		return Result{}, s.reject(MovementReleased, err)
	}
	if err := requirePositive(input.Quantity); err != nil {
		return Result{}, s.reject(MovementReleased, err)
	}
	return s.post(ctx, MovementReleased, input.MovementInput, func(ctx context.Context, l *ledger) (Result, []StockChange, error) {
		key := ItemKey{TenantID: input.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID}
		before, after, err := l.release(ctx, key, input.Quantity)
		if err != nil {
			return Result{}, nil, err
		}
		mv, err := l.tx.InsertMovement(ctx, s.movement(MovementReleased, input.MovementInput, nil, &input.WarehouseID, input.Quantity, nil))
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Movement: mv, Destination: &after}, []StockChange{change(before, after)}, nil
	})
}

// UpdateThresholds replaces the replenishment thresholds of an existing item.
func (s *Service) UpdateThresholds(ctx context.Context, input ThresholdsInput) (StockItem, error) {
	for name, v := range map[string]*decimal.Decimal{
		"reorder point":    input.ReorderPoint,
		"reorder quantity": input.ReorderQuantity,
		"minimum quantity": input.MinimumQuantity,
		"maximum quantity": input.MaximumQuantity,
	} {
		if v != nil && v.Sign() < 0 {
			return StockItem{}, shared.InvalidOperation("%s must not be negative, got %s", name, v)
		}
	}
	if input.MinimumQuantity != nil && input.MaximumQuantity != nil && input.MinimumQuantity.GreaterThan(*input.MaximumQuantity) {
		return StockItem{}, shared.InvalidOperation("minimum quantity %s exceeds maximum quantity %s", input.MinimumQuantity, input.MaximumQuantity)
	}
	var item StockItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l := newLedger(tx, s.cfg.AllowNegativeStock, s.now())
		current, err := l.load(ctx, input.Key)
		if err != nil {
			return err
		}
		current.ReorderPoint = input.ReorderPoint
		current.ReorderQuantity = input.ReorderQuantity
		current.MinimumQuantity = input.MinimumQuantity
		current.MaximumQuantity = input.MaximumQuantity
		if err := l.save(ctx, &current); err != nil {
			return err
		}
		item = current
		return nil
	})
	return item, err
}

// GetStockItem returns the ledger row for key.
func (s *Service) GetStockItem(ctx context.Context, key ItemKey) (StockItem, error) {
	var item StockItem
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		found, err := r.GetStockItem(ctx, key)
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		return StockItem{}, notFoundAs(err, key)
	}
	return item, nil
}

// Movements lists the movement history for a product, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.TenantID == 0 || filter.ProductID == 0 {
		return nil, shared.InvalidOperation("tenant and product required")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.InvalidOperation("movement window ends before it starts")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultMovementLimit
	case filter.Limit > maxMovementLimit:
		filter.Limit = maxMovementLimit
	}
	var out []Movement
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		rows, err := r.ListMovements(ctx, filter)
		out = rows
		return err
	})
	return out, err
}

type applyFunc func(ctx context.Context, l *ledger) (Result, []StockChange, error)

// posting is one movement waiting to be applied.
type posting struct {
	mt    MovementType
	in    MovementInput
	apply applyFunc
	// label prefixes errors of batched postings.
	label string
}

// post runs apply in one transaction, then publishes events and records the
// audit entry. Nothing is published when the transaction rolls back.
func (s *Service) post(ctx context.Context, mt MovementType, in MovementInput, apply applyFunc) (Result, error) {
	results, err := s.postAll(ctx, []posting{{mt: mt, in: in, apply: apply}}, nil)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// postAll applies postings in order inside one transaction and runs within
// before it commits. Each movement event is followed by the reorder events it
// raised.
func (s *Service) postAll(ctx context.Context, postings []posting, within func(context.Context) error) ([]Result, error) {
	if len(postings) == 0 && within == nil {
		return nil, nil
	}
	mt := MovementAdjustment
	if len(postings) > 0 {
		mt = postings[0].mt
	}
	now := s.now()
	var keys []MovementInput
	release := func() {
		for _, in := range keys {
			if err := s.idempotency.Delete(ctx, in.TenantID, in.IdempotencyKey); err != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", err))
			}
		}
	}
	if s.idempotency != nil {
		for _, p := range postings {
			if p.in.IdempotencyKey == "" {
				continue
			}
			if err := s.idempotency.CheckAndInsert(ctx, p.in.TenantID, p.in.IdempotencyKey, idempotencyModule); err != nil {
				release()
				return nil, s.reject(p.mt, err)
			}
			keys = append(keys, p.in)
		}
	}

	buf := events.NewBuffer()
	var (
		results []Result
		reorder int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		buf.Reset()
		results = results[:0]
		l := newLedger(tx, s.cfg.AllowNegativeStock, now)
		for _, p := range postings {
			raised := len(l.pending)
			res, changes, err := p.apply(ctx, l)
			if err != nil {
				if p.label != "" {
					return fmt.Errorf("%s: %w", p.label, err)
				}
				return err
			}
			results = append(results, res)
			buf.Add(events.New(movementEventName(p.mt), p.in.TenantID, movementPayload(res.Movement, changes)))
			for _, evt := range l.pending[raised:] {
				buf.Add(evt)
			}
		}
		reorder = len(l.pending)
		if within != nil {
			return within(ctx)
		}
		return nil
	})
	if err != nil {
		release()
		return nil, s.reject(mt, err)
	}
	for _, p := range postings {
		s.metrics.observe(p.mt, nil)
	}
	s.metrics.reorderReached(reorder)
	buf.Flush(ctx, s.publisher, s.logger)
	for _, res := range results {
		s.recordAudit(ctx, res.Movement)
	}
	return results, nil
}

func (s *Service) reject(mt MovementType, err error) error {
	s.metrics.observe(mt, err)
	return err
}

func (s *Service) recordAudit(ctx context.Context, mv Movement) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"product_id": mv.ProductID,
		"quantity":   mv.Quantity.String(),
	}
	if mv.FromWarehouseID != nil {
		meta["from_warehouse_id"] = *mv.FromWarehouseID
	}
	if mv.ToWarehouseID != nil {
		meta["to_warehouse_id"] = *mv.ToWarehouseID
	}
	if mv.Cost != nil {
		meta["cost"] = mv.Cost.String()
	}
	if !mv.Reference.IsZero() {
		meta["reference"] = mv.Reference
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: mv.TenantID,
		ActorID:  mv.CreatedBy,
		Action:   "inventory:" + strings.ToLower(string(mv.Type)),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", mv.ID),
		Meta:     meta,
		At:       mv.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("record stock movement audit", slog.Int64("movement_id", mv.ID), slog.Any("error", err))
	}
}

func (s *Service) movement(mt MovementType, in MovementInput, from, to *int64, qty decimal.Decimal, cost *decimal.Decimal) Movement {
	now := s.now()
	date := in.MovementDate
	if date.IsZero() {
		date = now
	}
	return Movement{
		TenantID:        in.TenantID,
		ProductID:       in.ProductID,
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Type:            mt,
		Quantity:        qty,
		Cost:            cost,
		Reference:       in.Reference,
		MovementDate:    date,
		Notes:           in.Notes,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
	}
}

func (s *Service) check(input any, base MovementInput) error {
	if err := s.validate.Struct(input); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return shared.InvalidOperation("movement %s is invalid (%s)", strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return shared.InvalidOperation("movement is invalid: %v", err)
	}
	if base.Reference.Kind != RefNone && base.Reference.ID == 0 && base.Reference.Number == "" {
		return shared.InvalidOperation("reference %s needs an id or number", base.Reference.Kind)
	}
	return nil
}

func requirePositive(qty decimal.Decimal) error {
	if !numeric.Positive(qty) {
		return shared.InvalidOperation("quantity must be greater than zero, got %s", qty)
	}
	return nil
}

func checkUnitCost(cost *decimal.Decimal) error {
	if cost != nil && cost.Sign() < 0 {
		return shared.InvalidOperation("unit cost must not be negative, got %s", cost)
	}
	return nil
}

func requireAccepting(ctx context.Context, tx TxRepository, tenantID, warehouseID int64) error {
	w, err := tx.GetWarehouse(ctx, tenantID, warehouseID)
	if err != nil {
		return err
	}
	if !w.CanAcceptStock() {
		return shared.InvalidOperation("warehouse %s cannot accept stock (%s)", w.Code, strings.ToLower(string(w.Status)))
	}
	return nil
}

func requireIssuing(ctx context.Context, tx TxRepository, tenantID, warehouseID int64) error {
	w, err := tx.GetWarehouse(ctx, tenantID, warehouseID)
	if err != nil {
		return err
	}
	if !w.CanIssueStock() {
		return shared.InvalidOperation("warehouse %s cannot issue stock (%s)", w.Code, strings.ToLower(string(w.Status)))
	}
	return nil
}

func change(before, after StockItem) StockChange {
	return StockChange{WarehouseID: after.WarehouseID, Before: before.Levels(), After: after.Levels()}
}

func movementPayload(mv Movement, changes []StockChange) MovementPostedEvent {
	return MovementPostedEvent{
		MovementID:      mv.ID,
		Type:            mv.Type,
		TenantID:        mv.TenantID,
		ProductID:       mv.ProductID,
		FromWarehouseID: mv.FromWarehouseID,
		ToWarehouseID:   mv.ToWarehouseID,
		Quantity:        mv.Quantity,
		UnitCost:        mv.Cost,
		Reference:       mv.Reference,
		MovementDate:    mv.MovementDate,
		CreatedBy:       mv.CreatedBy,
		Changes:         changes,
	}
}
