package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/events/eventstest"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/numeric"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/warehouses"
)

const (
	tenantID   = int64(1)
	productID  = int64(100)
	mainWH     = int64(1)
	branchWH   = int64(2)
	inactiveWH = int64(3)
)

type fixture struct {
	store  *inventorytest.Store
	keys   *inventorytest.Keys
	events *eventstest.Recorder
	audit  *auditRecorder
	svc    *inventory.Service
	clock  *stepClock
}

func newFixture(t *testing.T, cfg inventory.ServiceConfig) *fixture {
	t.Helper()
	store := inventorytest.New()
	store.AddWarehouse(warehouses.Warehouse{ID: mainWH, TenantID: tenantID, Code: "MAIN"})
	store.AddWarehouse(warehouses.Warehouse{ID: branchWH, TenantID: tenantID, Code: "BRANCH"})
	store.AddWarehouse(warehouses.Warehouse{ID: inactiveWH, TenantID: tenantID, Code: "OLD", Status: warehouses.StatusInactive})
	f := &fixture{
		store:  store,
		keys:   inventorytest.NewKeys(),
		events: &eventstest.Recorder{},
		audit:  &auditRecorder{},
		clock:  &stepClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.svc = inventory.NewService(store, f.audit, f.keys, cfg, f.events).WithClock(f.clock.Now)
	return f
}

func (f *fixture) key(warehouseID int64) inventory.ItemKey {
	return inventory.ItemKey{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID}
}

func (f *fixture) item(t *testing.T, warehouseID int64) inventory.StockItem {
	t.Helper()
	item, ok := f.store.Item(f.key(warehouseID))
	require.True(t, ok, "stock item for warehouse %d missing", warehouseID)
	require.NoError(t, item.CheckInvariant())
	return item
}

func (f *fixture) receive(t *testing.T, warehouseID int64, qty, cost string) inventory.Result {
	t.Helper()
	in := base(qty)
	if cost != "" {
		in.UnitCost = numeric.Ptr(dec(cost))
	}
	res, err := f.svc.ProcessReceipt(context.Background(), inventory.ReceiptInput{MovementInput: in, WarehouseID: warehouseID})
	require.NoError(t, err)
	return res
}

func (f *fixture) issue(warehouseID int64, qty string) (inventory.Result, error) {
	return f.svc.ProcessIssue(context.Background(), inventory.IssueInput{MovementInput: base(qty), WarehouseID: warehouseID})
}

func base(qty string) inventory.MovementInput {
	return inventory.MovementInput{
		TenantID:  tenantID,
		ProductID: productID,
		Quantity:  dec(qty),
		CreatedBy: 7,
	}
}

func dec(s string) decimal.Decimal {
	return numeric.MustParse(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// stepClock advances one minute per reading so movements get distinct dates.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) Logs() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.logs...)
}
