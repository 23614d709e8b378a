package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ValuationMethod selects how historical unit costs are attributed to stock on hand.
type ValuationMethod string

const (
	MethodFIFO            ValuationMethod = "FIFO"
	MethodLIFO            ValuationMethod = "LIFO"
	MethodWeightedAverage ValuationMethod = "WEIGHTED_AVERAGE"
	MethodStandardCost    ValuationMethod = "STANDARD_COST"
)

// ParseValuationMethod accepts the method names case-insensitively, with
// dashes or underscores.
func ParseValuationMethod(raw string) (ValuationMethod, error) {
	m := ValuationMethod(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	switch m {
	case MethodFIFO, MethodLIFO, MethodWeightedAverage, MethodStandardCost:
		return m, nil
	case "AVERAGE", "AVG":
		return MethodWeightedAverage, nil
	case "STANDARD":
		return MethodStandardCost, nil
	}
	return "", shared.InvalidOperation("unknown valuation method %q", raw)
}

// Valuation is the value of one stock item's on-hand quantity.
type Valuation struct {
	Method      ValuationMethod `json:"method"`
	TenantID    int64           `json:"tenant_id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
	AverageCost decimal.Decimal `json:"average_cost"`
	// UnvaluedQuantity is the part of Quantity no receipt layer covered under
	// FIFO or LIFO. It is valued at zero.
	UnvaluedQuantity decimal.Decimal `json:"unvalued_quantity"`
}

// AggregateValuation sums item valuations of a warehouse or a product.
type AggregateValuation struct {
	Method         ValuationMethod `json:"method"`
	TenantID       int64           `json:"tenant_id"`
	WarehouseID    int64           `json:"warehouse_id,omitempty"`
	ProductID      int64           `json:"product_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Value          decimal.Decimal `json:"value"`
	ItemCount      int             `json:"item_count"`
	WarehouseCount int             `json:"warehouse_count"`
	Items          []Valuation     `json:"items"`
}

// RevaluationSummary reports a tenant wide average cost recalculation.
type RevaluationSummary struct {
	TenantID int64
	Method   ValuationMethod
	Items    int
	Changed  int
}

// Valuator values stock by replaying receipt history against the ledger.
type Valuator struct {
	repo        RepositoryPort
	publisher   events.Publisher
	layerLimit  int
	method      ValuationMethod
	logger      *slog.Logger
	group       singleflight.Group
	concurrency int
}

// NewValuator builds a Valuator using the layer limit and default method of cfg.
func NewValuator(repo RepositoryPort, publisher events.Publisher, cfg ServiceConfig) *Valuator {
	method := cfg.DefaultValuationMethod
	if method == "" {
		method = MethodWeightedAverage
	}
	return &Valuator{
		repo:        repo,
		publisher:   publisher,
		layerLimit:  cfg.ValuationLayerLimit,
		method:      method,
		logger:      slog.Default(),
		concurrency: 4,
	}
}

// WithLogger replaces the logger.
func (v *Valuator) WithLogger(logger *slog.Logger) *Valuator {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// DefaultMethod is the method used when callers pass an empty one.
func (v *Valuator) DefaultMethod() ValuationMethod {
	return v.method
}

func (v *Valuator) resolve(method ValuationMethod) (ValuationMethod, error) {
	if method == "" {
		return v.method, nil
	}
	return ParseValuationMethod(string(method))
}

// Value values one stock item. Item and receipts are read from one snapshot.
func (v *Valuator) Value(ctx context.Context, key ItemKey, method ValuationMethod) (Valuation, error) {
	method, err := v.resolve(method)
	if err != nil {
		return Valuation{}, err
	}
	var out Valuation
	err = v.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		item, err := r.GetStockItem(ctx, key)
		if err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				out = emptyValuation(method, key)
				return nil
			}
			return err
		}
		out, err = valueItem(ctx, r, item, method, v.layerLimit)
		return err
	})
	return out, err
}

// WarehouseValue sums the value of every item held in a warehouse.
func (v *Valuator) WarehouseValue(ctx context.Context, tenantID, warehouseID int64, method ValuationMethod) (AggregateValuation, error) {
	method, err := v.resolve(method)
	if err != nil {
		return AggregateValuation{}, err
	}
	key := fmt.Sprintf("warehouse:%d:%d:%s", tenantID, warehouseID, method)
	return v.aggregate(ctx, key, StockItemFilter{TenantID: tenantID, WarehouseID: warehouseID}, method)
}

// ProductValue sums the value of a product across every warehouse.
func (v *Valuator) ProductValue(ctx context.Context, tenantID, productID int64, method ValuationMethod) (AggregateValuation, error) {
	method, err := v.resolve(method)
	if err != nil {
		return AggregateValuation{}, err
	}
	key := fmt.Sprintf("product:%d:%d:%s", tenantID, productID, method)
	return v.aggregate(ctx, key, StockItemFilter{TenantID: tenantID, ProductID: productID}, method)
}

// aggregate collapses identical concurrent requests into one snapshot read.
func (v *Valuator) aggregate(ctx context.Context, key string, filter StockItemFilter, method ValuationMethod) (AggregateValuation, error) {
	res, err, _ := v.group.Do(key, func() (any, error) {
		agg := AggregateValuation{
			Method:      method,
			TenantID:    filter.TenantID,
			WarehouseID: filter.WarehouseID,
			ProductID:   filter.ProductID,
			Quantity:    decimal.Zero,
			Value:       decimal.Zero,
		}
		err := v.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
			items, err := r.ListStockItems(ctx, filter)
			if err != nil {
				return err
			}
			seen := make(map[int64]struct{})
			for _, item := range items {
				if item.Quantity.Sign() <= 0 {
					continue
				}
				val, err := valueItem(ctx, r, item, method, v.layerLimit)
				if err != nil {
					return err
				}
				agg.Items = append(agg.Items, val)
				agg.Quantity = numeric.Add(agg.Quantity, val.Quantity)
				agg.Value = numeric.Add(agg.Value, val.Value)
				seen[item.WarehouseID] = struct{}{}
			}
			agg.ItemCount = len(agg.Items)
			agg.WarehouseCount = len(seen)
			return nil
		})
		return agg, err
	})
	if err != nil {
		return AggregateValuation{}, err
	}
	return res.(AggregateValuation), nil
}

// RecalculateAverageCost values the item under method and writes the result
// back as its average cost. StockValueChanged is published after commit when
// the item's total value moved.
func (v *Valuator) RecalculateAverageCost(ctx context.Context, key ItemKey, method ValuationMethod) (Valuation, error) {
	method, err := v.resolve(method)
	if err != nil {
		return Valuation{}, err
	}
	buf := events.NewBuffer()
	var out Valuation
	err = v.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		buf.Reset()
		l := newLedger(tx, false, time.Now().UTC())
		item, err := l.load(ctx, key)
		if err != nil {
			return err
		}
		val, err := valueItem(ctx, tx, item, method, v.layerLimit)
		if err != nil {
			return err
		}
		out = val
		if item.Quantity.Sign() <= 0 {
			return nil
		}
		evt, err := l.updateStockValue(ctx, item, val)
		if err != nil {
			return err
		}
		if evt != nil {
			buf.Add(events.New(events.StockValueChanged, key.TenantID, *evt))
		}
		return nil
	})
	if err != nil {
		return Valuation{}, err
	}
	buf.Flush(ctx, v.publisher, v.logger)
	return out, nil
}

// RevalueTenant recalculates the average cost of every stocked item of a
// tenant. Items are recalculated in their own transactions.
func (v *Valuator) RevalueTenant(ctx context.Context, tenantID int64, method ValuationMethod) (RevaluationSummary, error) {
	method, err := v.resolve(method)
	if err != nil {
		return RevaluationSummary{}, err
	}
	var items []StockItem
	err = v.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		items, err = r.ListStockItems(ctx, StockItemFilter{TenantID: tenantID})
		return err
	})
	if err != nil {
		return RevaluationSummary{}, err
	}
	summary := RevaluationSummary{TenantID: tenantID, Method: method}
	changed := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, item := range items {
		if item.Quantity.Sign() <= 0 {
			continue
		}
		summary.Items++
		i, item := i, item
		g.Go(func() error {
			val, err := v.RecalculateAverageCost(gctx, item.Key(), method)
			if err != nil {
				return fmt.Errorf("inventory: revalue product %d in warehouse %d: %w", item.ProductID, item.WarehouseID, err)
			}
			changed[i] = !val.AverageCost.Equal(item.AverageCost)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for _, c := range changed {
		if c {
			summary.Changed++
		}
	}
	return summary, nil
}

// updateStockValue stores the recalculated average cost and returns the
// StockValueChanged payload when the item's value changed.
func (l *ledger) updateStockValue(ctx context.Context, item StockItem, val Valuation) (*StockValueChangedEvent, error) {
	oldValue := item.Value()
	oldAvg := item.AverageCost
	item.AverageCost = val.AverageCost
	if err := l.save(ctx, &item); err != nil {
		return nil, err
	}
	newValue := item.Value()
	if newValue.Equal(oldValue) {
		return nil, nil
	}
	return &StockValueChangedEvent{
		TenantID:       item.TenantID,
		ProductID:      item.ProductID,
		WarehouseID:    item.WarehouseID,
		Method:         val.Method,
		Quantity:       item.Quantity,
		OldAverageCost: oldAvg,
		NewAverageCost: item.AverageCost,
		OldValue:       oldValue,
		NewValue:       newValue,
	}, nil
}

// valueItem values item under method. Items without positive quantity are
// worth zero and no history is read.
func valueItem(ctx context.Context, r SnapshotReader, item StockItem, method ValuationMethod, layerLimit int) (Valuation, error) {
	key := item.Key()
	if item.Quantity.Sign() <= 0 {
		return emptyValuation(method, key), nil
	}
	out := emptyValuation(method, key)
	out.Quantity = item.Quantity
	switch method {
	case MethodFIFO, MethodLIFO:
		receipts, err := r.ListReceipts(ctx, key, method == MethodLIFO, layerLimit)
		if err != nil {
			return Valuation{}, err
		}
		out.Value, out.UnvaluedQuantity = consumeLayers(receipts, item.Quantity)
		avg, err := numeric.Div(out.Value, item.Quantity)
		if err != nil {
			return Valuation{}, err
		}
		out.AverageCost = avg
	case MethodWeightedAverage:
		out.AverageCost = item.AverageCost
		out.Value = numeric.Mul(item.Quantity, item.AverageCost)
	case MethodStandardCost:
		costs, err := r.ProductCost(ctx, key.TenantID, key.ProductID)
		if err != nil {
			return Valuation{}, err
		}
		standard := decimal.Zero
		switch {
		case costs.StandardCost != nil:
			standard = *costs.StandardCost
		case costs.Cost != nil:
			standard = *costs.Cost
		}
		out.AverageCost = standard
		out.Value = numeric.Mul(item.Quantity, standard)
	default:
		return Valuation{}, shared.InvalidOperation("unknown valuation method %q", method)
	}
	return out, nil
}

// consumeLayers walks receipt layers in the given order until qty is covered.
// The last layer contributes only the remainder still needed.
func consumeLayers(receipts []Movement, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	value := decimal.Zero
	remaining := qty
	for _, layer := range receipts {
		if remaining.Sign() <= 0 {
			break
		}
		take := numeric.Min(layer.Quantity, remaining)
		value = numeric.Add(value, numeric.Mul(take, numeric.OrZero(layer.Cost)))
		remaining = numeric.Sub(remaining, take)
	}
	return value, numeric.Max(remaining, decimal.Zero)
}

func emptyValuation(method ValuationMethod, key ItemKey) Valuation {
	return Valuation{
		Method:           method,
		TenantID:         key.TenantID,
		ProductID:        key.ProductID,
		WarehouseID:      key.WarehouseID,
		Quantity:         decimal.Zero,
		Value:            decimal.Zero,
		AverageCost:      decimal.Zero,
		UnvaluedQuantity: decimal.Zero,
	}
}
