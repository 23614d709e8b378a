package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
)

const (
	usageWindowDays = 30
	// reorderCoverDays is how many days of usage a reorder point is assumed to cover.
	reorderCoverDays = 7
)

// ShouldReorder reports whether available stock is at or below the reorder
// point, unless the item is already stocked above its maximum.
func ShouldReorder(item StockItem) bool {
	if item.ReorderPoint == nil {
		return false
	}
	if item.AvailableQuantity.GreaterThan(*item.ReorderPoint) {
		return false
	}
	if item.MaximumQuantity != nil && item.Quantity.GreaterThan(*item.MaximumQuantity) {
		return false
	}
	return true
}

// SuggestedOrderQuantity proposes how much to order, never less than one unit.
func SuggestedOrderQuantity(item StockItem) decimal.Decimal {
	if item.ReorderQuantity != nil && item.ReorderQuantity.Sign() > 0 {
		return *item.ReorderQuantity
	}
	if item.MaximumQuantity != nil {
		return numeric.Max(numeric.Sub(*item.MaximumQuantity, item.AvailableQuantity), numeric.One)
	}
	if item.ReorderPoint != nil {
		double := numeric.Mul(*item.ReorderPoint, decimal.NewFromInt(2))
		return numeric.Max(numeric.Sub(double, item.AvailableQuantity), numeric.One)
	}
	return numeric.One
}

// DaysToStockout estimates whole days until available stock runs out. It is
// nil when usage is zero and nothing can be estimated.
func DaysToStockout(item StockItem, dailyUsage decimal.Decimal) *int64 {
	if item.AvailableQuantity.Sign() <= 0 {
		zero := int64(0)
		return &zero
	}
	if dailyUsage.Sign() <= 0 {
		return nil
	}
	days, err := numeric.Div(item.AvailableQuantity, dailyUsage)
	if err != nil {
		return nil
	}
	n := days.Ceil().IntPart()
	return &n
}

// Priority ranks replenishment urgency from 1 (low) to 10 (out of stock).
func Priority(item StockItem) int {
	if item.AvailableQuantity.Sign() <= 0 {
		return 10
	}
	if item.ReorderPoint == nil || item.ReorderPoint.Sign() <= 0 {
		return 1
	}
	rp := *item.ReorderPoint
	below, err := numeric.Div(numeric.Sub(rp, item.AvailableQuantity), rp)
	if err != nil {
		return 1
	}
	percent := numeric.Mul(below, decimal.NewFromInt(100))
	switch {
	case percent.GreaterThanOrEqual(decimal.NewFromInt(75)):
		return 9
	case percent.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return 7
	case percent.GreaterThanOrEqual(decimal.NewFromInt(25)):
		return 5
	default:
		return 3
	}
}

// ReorderSuggestion describes one item that needs replenishment.
type ReorderSuggestion struct {
	Item              StockItem       `json:"item"`
	SuggestedQuantity decimal.Decimal `json:"suggested_quantity"`
	AverageDailyUsage decimal.Decimal `json:"average_daily_usage"`
	DaysToStockout    *int64          `json:"days_to_stockout"`
	Priority          int             `json:"priority"`
}

// ReorderAnalyzer reads the ledger and issue history to propose replenishment.
type ReorderAnalyzer struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewReorderAnalyzer builds an analyzer over repo.
func NewReorderAnalyzer(repo RepositoryPort) *ReorderAnalyzer {
	return &ReorderAnalyzer{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (a *ReorderAnalyzer) WithClock(now func() time.Time) *ReorderAnalyzer {
	if now != nil {
		a.now = now
	}
	return a
}

// AverageDailyUsage is the issued quantity over the trailing 30 days divided
// by 30. Without issues it falls back to a seventh of the reorder point.
func (a *ReorderAnalyzer) AverageDailyUsage(ctx context.Context, item StockItem) (decimal.Decimal, error) {
	var usage decimal.Decimal
	err := a.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		usage, err = a.dailyUsage(ctx, r, item)
		return err
	})
	return usage, err
}

func (a *ReorderAnalyzer) dailyUsage(ctx context.Context, r SnapshotReader, item StockItem) (decimal.Decimal, error) {
	since := a.now().AddDate(0, 0, -usageWindowDays)
	issued, err := r.SumIssued(ctx, item.Key(), since)
	if err != nil {
		return decimal.Zero, err
	}
	usage, err := numeric.Div(issued, decimal.NewFromInt(usageWindowDays))
	if err != nil {
		return decimal.Zero, err
	}
	if !usage.IsZero() {
		return usage, nil
	}
	if item.ReorderPoint != nil && item.ReorderPoint.Sign() > 0 {
		return numeric.Div(*item.ReorderPoint, decimal.NewFromInt(reorderCoverDays))
	}
	return decimal.Zero, nil
}

// Suggestions lists every item matching filter that should be reordered,
// most urgent first. Items of equal priority keep their listing order.
func (a *ReorderAnalyzer) Suggestions(ctx context.Context, filter StockItemFilter) ([]ReorderSuggestion, error) {
	var out []ReorderSuggestion
	err := a.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		items, err := r.ListStockItems(ctx, filter)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !ShouldReorder(item) {
				continue
			}
			usage, err := a.dailyUsage(ctx, r, item)
			if err != nil {
				return err
			}
			out = append(out, ReorderSuggestion{
				Item:              item,
				SuggestedQuantity: SuggestedOrderQuantity(item),
				AverageDailyUsage: usage,
				DaysToStockout:    DaysToStockout(item, usage),
				Priority:          Priority(item),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out, nil
}
