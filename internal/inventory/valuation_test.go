package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// layeredFixture holds receipts of 10 @ 5.00 then 10 @ 7.00 with 15 left on hand.
func layeredFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "10", "5.00")
	f.receive(t, mainWH, "10", "7.00")
	_, err := f.issue(mainWH, "5")
	require.NoError(t, err)
	return f
}

func TestValuationMethods(t *testing.T) {
	f := layeredFixture(t)
	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	cases := []struct {
		method  inventory.ValuationMethod
		value   string
		average string
	}{
		{inventory.MethodFIFO, "85", "5.66666667"},
		{inventory.MethodLIFO, "95", "6.33333333"},
		{inventory.MethodWeightedAverage, "90", "6"},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			val, err := valuator.Value(ctx, f.key(mainWH), tc.method)
			require.NoError(t, err)
			require.Equal(t, tc.method, val.Method)
			requireDecimal(t, "15", val.Quantity)
			requireDecimal(t, tc.value, val.Value)
			requireDecimal(t, tc.average, val.AverageCost)
			requireDecimal(t, "0", val.UnvaluedQuantity)
		})
	}
}

func TestWeightedAverageIgnoresHistory(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	item := inventory.NewStockItem(f.key(mainWH))
	item.Quantity = dec("15")
	item.AvailableQuantity = dec("15")
	item.AverageCost = dec("6.00")
	f.store.PutItem(item)

	val, err := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{}).
		Value(context.Background(), f.key(mainWH), inventory.MethodWeightedAverage)
	require.NoError(t, err)
	requireDecimal(t, "90", val.Value)
}

func TestStandardCostFallbacks(t *testing.T) {
	f := layeredFixture(t)
	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	val, err := valuator.Value(ctx, f.key(mainWH), inventory.MethodStandardCost)
	require.NoError(t, err)
	requireDecimal(t, "0", val.Value)

	f.store.SetProductCost(tenantID, productID, inventory.ProductCost{Cost: numeric.Ptr(dec("4"))})
	val, err = valuator.Value(ctx, f.key(mainWH), inventory.MethodStandardCost)
	require.NoError(t, err)
	requireDecimal(t, "60", val.Value)

	f.store.SetProductCost(tenantID, productID, inventory.ProductCost{StandardCost: numeric.Ptr(dec("5.5")), Cost: numeric.Ptr(dec("4"))})
	val, err = valuator.Value(ctx, f.key(mainWH), inventory.MethodStandardCost)
	require.NoError(t, err)
	requireDecimal(t, "82.5", val.Value)
	requireDecimal(t, "5.5", val.AverageCost)
}

func TestValuationOfMissingOrEmptyItemIsZero(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	for _, method := range []inventory.ValuationMethod{inventory.MethodFIFO, inventory.MethodLIFO, inventory.MethodWeightedAverage, inventory.MethodStandardCost} {
		val, err := valuator.Value(ctx, f.key(mainWH), method)
		require.NoError(t, err)
		requireDecimal(t, "0", val.Quantity)
		requireDecimal(t, "0", val.Value)
		requireDecimal(t, "0", val.AverageCost)
	}

	f.receive(t, mainWH, "3", "2")
	_, err := f.issue(mainWH, "3")
	require.NoError(t, err)
	val, err := valuator.Value(ctx, f.key(mainWH), inventory.MethodFIFO)
	require.NoError(t, err)
	requireDecimal(t, "0", val.Value)
}

func TestLayerLimitReportsUnvaluedQuantity(t *testing.T) {
	f := layeredFixture(t)
	limited := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{ValuationLayerLimit: 1})

	val, err := limited.Value(context.Background(), f.key(mainWH), inventory.MethodFIFO)
	require.NoError(t, err)
	requireDecimal(t, "50", val.Value)
	requireDecimal(t, "5", val.UnvaluedQuantity)
}

func TestUnknownValuationMethod(t *testing.T) {
	f := layeredFixture(t)
	_, err := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{}).
		Value(context.Background(), f.key(mainWH), "MOVING")
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	method, err := inventory.ParseValuationMethod("weighted-average")
	require.NoError(t, err)
	require.Equal(t, inventory.MethodWeightedAverage, method)
}

func TestWarehouseAndProductValue(t *testing.T) {
	f := layeredFixture(t)
	ctx := context.Background()
	f.receive(t, branchWH, "4", "2.50")
	other := base("2")
	other.ProductID = 200
	other.UnitCost = numeric.Ptr(dec("10"))
	_, err := f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: other, WarehouseID: mainWH})
	require.NoError(t, err)

	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{DefaultValuationMethod: inventory.MethodFIFO})

	wh, err := valuator.WarehouseValue(ctx, tenantID, mainWH, "")
	require.NoError(t, err)
	require.Equal(t, inventory.MethodFIFO, wh.Method)
	require.Equal(t, 2, wh.ItemCount)
	require.Equal(t, 1, wh.WarehouseCount)
	requireDecimal(t, "17", wh.Quantity)
	requireDecimal(t, "105", wh.Value)

	prod, err := valuator.ProductValue(ctx, tenantID, productID, inventory.MethodWeightedAverage)
	require.NoError(t, err)
	require.Equal(t, 2, prod.ItemCount)
	require.Equal(t, 2, prod.WarehouseCount)
	requireDecimal(t, "19", prod.Quantity)
	requireDecimal(t, "100", prod.Value)
}

func TestConcurrentAggregatesAgree(t *testing.T) {
	f := layeredFixture(t)
	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]inventory.AggregateValuation, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = valuator.WarehouseValue(ctx, tenantID, mainWH, inventory.MethodLIFO)
		}(i)
	}
	wg.Wait()
	for i, agg := range results {
		require.NoError(t, errs[i])
		requireDecimal(t, "95", agg.Value)
	}
}

func TestRecalculateAverageCostPublishesValueChange(t *testing.T) {
	f := layeredFixture(t)
	f.events.Reset()
	valuator := inventory.NewValuator(f.store, f.events, inventory.ServiceConfig{})
	ctx := context.Background()

	val, err := valuator.RecalculateAverageCost(ctx, f.key(mainWH), inventory.MethodLIFO)
	require.NoError(t, err)
	requireDecimal(t, "95", val.Value)
	requireDecimal(t, "6.33333333", f.item(t, mainWH).AverageCost)

	published := f.events.Events()
	require.Len(t, published, 1)
	require.Equal(t, events.StockValueChanged, published[0].Name)
	changed := published[0].Payload.(inventory.StockValueChangedEvent)
	requireDecimal(t, "90", changed.OldValue)
	requireDecimal(t, "94.99999995", changed.NewValue)
	requireDecimal(t, "6", changed.OldAverageCost)

	// a second run under the same method finds nothing to change
	_, err = valuator.RecalculateAverageCost(ctx, f.key(mainWH), inventory.MethodLIFO)
	require.NoError(t, err)
	require.Len(t, f.events.Events(), 1)
}

func TestRevalueTenant(t *testing.T) {
	f := layeredFixture(t)
	f.receive(t, branchWH, "4", "2.50")
	valuator := inventory.NewValuator(f.store, nil, inventory.ServiceConfig{})

	summary, err := valuator.RevalueTenant(context.Background(), tenantID, inventory.MethodFIFO)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Items)
	require.Equal(t, 1, summary.Changed)
	requireDecimal(t, "5.66666667", f.item(t, mainWH).AverageCost)
	requireDecimal(t, "2.5", f.item(t, branchWH).AverageCost)
}
