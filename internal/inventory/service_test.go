package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestReceiptThenIssueRoundTrip(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})

	res := f.receive(t, mainWH, "20", "4.00")
	require.Equal(t, inventory.MovementReceipt, res.Movement.Type)
	require.NotNil(t, res.Movement.ToWarehouseID)
	require.Nil(t, res.Movement.FromWarehouseID)

	item := f.item(t, mainWH)
	requireDecimal(t, "20", item.Quantity)
	requireDecimal(t, "20", item.AvailableQuantity)
	requireDecimal(t, "0", item.ReservedQuantity)
	requireDecimal(t, "4", item.AverageCost)

	res, err := f.issue(mainWH, "5")
	require.NoError(t, err)
	require.Equal(t, inventory.MovementIssue, res.Movement.Type)
	require.Equal(t, mainWH, *res.Movement.FromWarehouseID)
	requireDecimal(t, "4", *res.Movement.Cost)

	item = f.item(t, mainWH)
	requireDecimal(t, "15", item.Quantity)
	requireDecimal(t, "15", item.AvailableQuantity)
	requireDecimal(t, "4", item.AverageCost)
}

func TestReceiptBlendsWeightedAverageCost(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "10", "5.00")
	f.receive(t, mainWH, "10", "7.00")
	requireDecimal(t, "6", f.item(t, mainWH).AverageCost)

	// receipts without a cost leave the average alone
	f.receive(t, mainWH, "5", "")
	item := f.item(t, mainWH)
	requireDecimal(t, "25", item.Quantity)
	requireDecimal(t, "6", item.AverageCost)
}

func TestIssueInsufficientStockLeavesItemUnchanged(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "15", "3")
	before := f.item(t, mainWH)
	movements := len(f.store.Movements())
	f.events.Reset()

	_, err := f.issue(mainWH, "100")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Contains(t, err.Error(), "100")

	require.Equal(t, before, f.item(t, mainWH))
	require.Len(t, f.store.Movements(), movements)
	require.Empty(t, f.events.Events())
}

func TestIssueRequiresExistingItem(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	_, err := f.issue(mainWH, "1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIssueCannotConsumeReservedStock(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "10", "1")
	_, err := f.svc.ReserveStock(context.Background(), inventory.ReservationInput{MovementInput: base("8"), WarehouseID: mainWH})
	require.NoError(t, err)

	_, err = f.issue(mainWH, "5")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	item := f.item(t, mainWH)
	requireDecimal(t, "10", item.Quantity)
	requireDecimal(t, "2", item.AvailableQuantity)
}

func TestNegativeStockWhenAllowed(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{AllowNegativeStock: true})
	f.receive(t, mainWH, "5", "2")

	_, err := f.issue(mainWH, "8")
	require.NoError(t, err)
	item := f.item(t, mainWH)
	requireDecimal(t, "-3", item.Quantity)
	requireDecimal(t, "-3", item.AvailableQuantity)
	requireDecimal(t, "0", item.ReservedQuantity)
}

func TestRejectsNonPositiveQuantities(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	for _, qty := range []string{"0", "-1"} {
		_, err := f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: base(qty), WarehouseID: mainWH})
		require.ErrorIs(t, err, shared.ErrInvalidOperation, qty)
		_, err = f.issue(mainWH, qty)
		require.ErrorIs(t, err, shared.ErrInvalidOperation, qty)
		_, err = f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base(qty), WarehouseID: mainWH})
		require.ErrorIs(t, err, shared.ErrInvalidOperation, qty)
		_, err = f.svc.ReleaseStock(ctx, inventory.ReservationInput{MovementInput: base(qty), WarehouseID: mainWH})
		require.ErrorIs(t, err, shared.ErrInvalidOperation, qty)
	}
	_, err := f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("0"), WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	in := base("1")
	in.UnitCost = numeric.Ptr(dec("-2"))
	_, err = f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: in, WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	in = base("1")
	in.TenantID = 0
	_, err = f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: in, WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
	require.Empty(t, f.store.Movements())
}

func TestWarehouseCapabilityChecks(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: base("1"), WarehouseID: inactiveWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
	require.Contains(t, err.Error(), "OLD")

	_, err = f.issue(inactiveWH, "1")
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	_, err = f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: base("1"), WarehouseID: 99})
	require.ErrorIs(t, err, shared.ErrNotFound)

	f.receive(t, mainWH, "5", "1")
	_, err = f.svc.ProcessTransfer(ctx, inventory.TransferInput{MovementInput: base("1"), FromWarehouseID: mainWH, ToWarehouseID: inactiveWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
	requireDecimal(t, "5", f.item(t, mainWH).Quantity)
}

func TestTransferMovesStockAtSourceCost(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "10", "5")
	f.events.Reset()

	res, err := f.svc.ProcessTransfer(context.Background(), inventory.TransferInput{
		MovementInput:   base("4"),
		FromWarehouseID: mainWH,
		ToWarehouseID:   branchWH,
	})
	require.NoError(t, err)
	require.Equal(t, inventory.MovementTransfer, res.Movement.Type)
	require.Equal(t, mainWH, *res.Movement.FromWarehouseID)
	require.Equal(t, branchWH, *res.Movement.ToWarehouseID)
	requireDecimal(t, "5", *res.Movement.Cost)

	requireDecimal(t, "6", f.item(t, mainWH).Quantity)
	dst := f.item(t, branchWH)
	requireDecimal(t, "4", dst.Quantity)
	requireDecimal(t, "5", dst.AverageCost)

	published := f.events.Events()
	require.Len(t, published, 1)
	require.Equal(t, events.StockTransferred, published[0].Name)
	payload := published[0].Payload.(inventory.MovementPostedEvent)
	require.Len(t, payload.Changes, 2)
	requireDecimal(t, "10", payload.Changes[0].Before.Quantity)
	requireDecimal(t, "6", payload.Changes[0].After.Quantity)
	requireDecimal(t, "0", payload.Changes[1].Before.Quantity)
	requireDecimal(t, "4", payload.Changes[1].After.Quantity)
}

func TestTransferRejectsSameWarehouseAndShortSource(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "3", "5")

	_, err := f.svc.ProcessTransfer(ctx, inventory.TransferInput{MovementInput: base("1"), FromWarehouseID: mainWH, ToWarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	_, err = f.svc.ProcessTransfer(ctx, inventory.TransferInput{MovementInput: base("4"), FromWarehouseID: mainWH, ToWarehouseID: branchWH})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	requireDecimal(t, "3", f.item(t, mainWH).Quantity)
	_, ok := f.store.Item(f.key(branchWH))
	require.False(t, ok)
}

func TestAdjustmentEncodesDirection(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "10", "2")

	up, err := f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("3"), WarehouseID: mainWH})
	require.NoError(t, err)
	require.Nil(t, up.Movement.FromWarehouseID)
	require.Equal(t, mainWH, *up.Movement.ToWarehouseID)
	requireDecimal(t, "13", f.item(t, mainWH).Quantity)

	down, err := f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("-2"), WarehouseID: mainWH})
	require.NoError(t, err)
	require.Equal(t, mainWH, *down.Movement.FromWarehouseID)
	require.Nil(t, down.Movement.ToWarehouseID)
	requireDecimal(t, "2", down.Movement.Quantity)
	requireDecimal(t, "11", f.item(t, mainWH).Quantity)

	_, err = f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("-20"), WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	requireDecimal(t, "11", f.item(t, mainWH).Quantity)
}

func TestReserveThenReleaseRestoresSplit(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "10", "1")
	before := f.item(t, mainWH)

	res, err := f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base("4"), WarehouseID: mainWH})
	require.NoError(t, err)
	require.Equal(t, inventory.MovementReserved, res.Movement.Type)
	item := f.item(t, mainWH)
	requireDecimal(t, "6", item.AvailableQuantity)
	requireDecimal(t, "4", item.ReservedQuantity)
	requireDecimal(t, "10", item.Quantity)

	res, err = f.svc.ReleaseStock(ctx, inventory.ReservationInput{MovementInput: base("4"), WarehouseID: mainWH})
	require.NoError(t, err)
	require.Equal(t, inventory.MovementReleased, res.Movement.Type)
	after := f.item(t, mainWH)
	require.True(t, before.AvailableQuantity.Equal(after.AvailableQuantity))
	require.True(t, before.ReservedQuantity.Equal(after.ReservedQuantity))
}

func TestReservationBounds(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "5", "1")

	_, err := f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base("6"), WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base("2"), WarehouseID: mainWH})
	require.NoError(t, err)
	_, err = f.svc.ReleaseStock(ctx, inventory.ReservationInput{MovementInput: base("3"), WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
	item := f.item(t, mainWH)
	requireDecimal(t, "2", item.ReservedQuantity)
	requireDecimal(t, "3", item.AvailableQuantity)
}

func TestEventsFollowCommitOncePerCall(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "10", "1")
	_, err := f.issue(mainWH, "1")
	require.NoError(t, err)
	_, err = f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("1"), WarehouseID: mainWH})
	require.NoError(t, err)
	_, err = f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base("1"), WarehouseID: mainWH})
	require.NoError(t, err)
	_, err = f.svc.ReleaseStock(ctx, inventory.ReservationInput{MovementInput: base("1"), WarehouseID: mainWH})
	require.NoError(t, err)
	_, err = f.issue(mainWH, "500")
	require.Error(t, err)

	require.Equal(t, []events.Name{
		events.StockReceived,
		events.StockIssued,
		events.StockAdjusted,
		events.StockReserved,
		events.StockReleased,
	}, f.events.Names())
	require.Len(t, f.audit.Logs(), 5)
	require.Equal(t, "inventory:issue", f.audit.Logs()[1].Action)
}

func TestPublishFailureDoesNotFailMovement(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.events.Err = errors.New("broker down")

	f.receive(t, mainWH, "2", "1")
	requireDecimal(t, "2", f.item(t, mainWH).Quantity)
	require.Len(t, f.events.Events(), 1)
}

func TestReorderPointReachedOnCrossing(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "10", "1")
	_, err := f.svc.UpdateThresholds(ctx, inventory.ThresholdsInput{Key: f.key(mainWH), ReorderPoint: numeric.Ptr(dec("5"))})
	require.NoError(t, err)
	f.events.Reset()

	_, err = f.issue(mainWH, "4")
	require.NoError(t, err)
	require.Equal(t, []events.Name{events.StockIssued}, f.events.Names())

	_, err = f.issue(mainWH, "2")
	require.NoError(t, err)
	names := f.events.Names()
	require.Equal(t, []events.Name{events.StockIssued, events.StockIssued, events.ReorderPointReached}, names)
	reached := f.events.Events()[2].Payload.(inventory.ReorderPointReachedEvent)
	requireDecimal(t, "4", reached.AvailableQuantity)
	requireDecimal(t, "6", reached.SuggestedQuantity)

	// already below the point: no second notification
	_, err = f.issue(mainWH, "1")
	require.NoError(t, err)
	require.Len(t, f.events.Events(), 4)
}

func TestIdempotencyKeyPreventsDoublePosting(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	in := base("5")
	in.IdempotencyKey = "grn-42"

	_, err := f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: in, WarehouseID: mainWH})
	require.NoError(t, err)
	_, err = f.svc.ProcessReceipt(ctx, inventory.ReceiptInput{MovementInput: in, WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	requireDecimal(t, "5", f.item(t, mainWH).Quantity)

	// a failed posting releases its key
	out := base("50")
	out.IdempotencyKey = "do-1"
	_, err = f.svc.ProcessIssue(ctx, inventory.IssueInput{MovementInput: out, WarehouseID: mainWH})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.False(t, f.keys.Has(tenantID, "do-1"))
}

func TestFailedMovementInsertRollsBackLedger(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	f.receive(t, mainWH, "4", "1")
	f.store.FailInsertMovement = errors.New("disk full")

	_, err := f.issue(mainWH, "1")
	require.EqualError(t, err, "disk full")
	requireDecimal(t, "4", f.item(t, mainWH).Quantity)

	_, err = f.svc.ProcessReceipt(context.Background(), inventory.ReceiptInput{MovementInput: base("1"), WarehouseID: branchWH})
	require.Error(t, err)
	_, ok := f.store.Item(f.key(branchWH))
	require.False(t, ok)
}

func TestInvariantHoldsUnderConcurrentMovements(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "100", "2")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _ = f.issue(mainWH, "1")
			case 1:
				_, _ = f.svc.ReserveStock(ctx, inventory.ReservationInput{MovementInput: base("2"), WarehouseID: mainWH})
			case 2:
				_, _ = f.svc.ProcessTransfer(ctx, inventory.TransferInput{MovementInput: base("1"), FromWarehouseID: mainWH, ToWarehouseID: branchWH})
			default:
				_, _ = f.svc.ProcessAdjustment(ctx, inventory.AdjustmentInput{MovementInput: base("-1"), WarehouseID: mainWH})
			}
		}(i)
	}
	wg.Wait()

	src := f.item(t, mainWH)
	branch := f.item(t, branchWH)
	requireDecimal(t, "70", src.Quantity)
	requireDecimal(t, "20", src.ReservedQuantity)
	requireDecimal(t, "50", src.AvailableQuantity)
	requireDecimal(t, "10", branch.Quantity)
	require.Len(t, f.store.Movements(), 41)
}

func TestUpdateThresholdsValidation(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.UpdateThresholds(ctx, inventory.ThresholdsInput{Key: f.key(mainWH), ReorderPoint: numeric.Ptr(dec("1"))})
	require.ErrorIs(t, err, shared.ErrNotFound)

	f.receive(t, mainWH, "1", "1")
	_, err = f.svc.UpdateThresholds(ctx, inventory.ThresholdsInput{
		Key:             f.key(mainWH),
		MinimumQuantity: numeric.Ptr(dec("10")),
		MaximumQuantity: numeric.Ptr(dec("5")),
	})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	_, err = f.svc.UpdateThresholds(ctx, inventory.ThresholdsInput{Key: f.key(mainWH), ReorderPoint: numeric.Ptr(dec("-1"))})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	item, err := f.svc.UpdateThresholds(ctx, inventory.ThresholdsInput{
		Key:             f.key(mainWH),
		ReorderPoint:    numeric.Ptr(dec("3")),
		ReorderQuantity: numeric.Ptr(dec("12")),
	})
	require.NoError(t, err)
	requireDecimal(t, "3", *item.ReorderPoint)
	requireDecimal(t, "12", *f.item(t, mainWH).ReorderQuantity)
}

func TestMovementsHistory(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	ctx := context.Background()
	f.receive(t, mainWH, "10", "1")
	f.receive(t, branchWH, "10", "1")
	_, err := f.issue(mainWH, "2")
	require.NoError(t, err)

	all, err := f.svc.Movements(ctx, inventory.MovementFilter{TenantID: tenantID, ProductID: productID, WarehouseID: mainWH})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, inventory.MovementIssue, all[0].Type)

	receipts, err := f.svc.Movements(ctx, inventory.MovementFilter{
		TenantID:  tenantID,
		ProductID: productID,
		Types:     []inventory.MovementType{inventory.MovementReceipt},
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, branchWH, *receipts[0].ToWarehouseID)

	_, err = f.svc.Movements(ctx, inventory.MovementFilter{TenantID: tenantID})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
}

func TestGetStockItem(t *testing.T) {
	f := newFixture(t, inventory.ServiceConfig{})
	_, err := f.svc.GetStockItem(context.Background(), f.key(mainWH))
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, err.Error(), "warehouse 1")

	f.receive(t, mainWH, "2", "3")
	item, err := f.svc.GetStockItem(context.Background(), f.key(mainWH))
	require.NoError(t, err)
	requireDecimal(t, "6", item.Value())
}
