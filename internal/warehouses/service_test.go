package warehouses

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Warehouse
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Warehouse)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Warehouse, len(r.rows))
	for k, v := range r.rows {
		snapshot[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, r); err != nil {
		r.rows = snapshot
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	w, ok := r.rows[id]
	if !ok || w.TenantID != tenantID {
		return Warehouse{}, shared.NotFound("warehouse", id)
	}
	return w, nil
}

func (r *memoryRepo) FindDefault(ctx context.Context, tenantID int64, organizationID *int64) (Warehouse, error) {
	for _, w := range r.rows {
		if w.TenantID == tenantID && sameOrganization(w.OrganizationID, organizationID) && w.IsDefault {
			return w, nil
		}
	}
	return Warehouse{}, shared.NotFound("default warehouse for tenant", tenantID)
}

func (r *memoryRepo) Insert(ctx context.Context, w Warehouse) (int64, error) {
	for _, existing := range r.rows {
		if existing.TenantID == w.TenantID && existing.Code == w.Code {
			return 0, ErrDuplicateCode
		}
	}
	r.nextID++
	w.ID = r.nextID
	r.rows[w.ID] = w
	return w.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, w Warehouse) error {
	if _, ok := r.rows[w.ID]; !ok {
		return shared.NotFound("warehouse", w.ID)
	}
	r.rows[w.ID] = w
	return nil
}

func (r *memoryRepo) ClearDefault(ctx context.Context, tenantID int64, organizationID *int64) error {
	for id, w := range r.rows {
		if w.TenantID == tenantID && sameOrganization(w.OrganizationID, organizationID) {
			w.IsDefault = false
			r.rows[id] = w
		}
	}
	return nil
}

func (r *memoryRepo) defaults(tenantID int64) int {
	n := 0
	for _, w := range r.rows {
		if w.TenantID == tenantID && w.IsDefault {
			n++
		}
	}
	return n
}

func TestFirstWarehouseBecomesDefault(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	main, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "MAIN", Name: "Main"})
	require.NoError(t, err)
	require.True(t, main.IsDefault)
	require.True(t, main.CanAcceptStock())
	require.True(t, main.CanIssueStock())

	second, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "OVF", Name: "Overflow"})
	require.NoError(t, err)
	require.False(t, second.IsDefault)
	require.Equal(t, 1, repo.defaults(1))
}

func TestSetDefaultKeepsExactlyOne(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "A", Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "B", Name: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.SetDefault(ctx, 1, b.ID))
	require.Equal(t, 1, repo.defaults(1))

	def, err := svc.Default(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, b.ID, def.ID)

	c, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "C", Name: "C", IsDefault: true})
	require.NoError(t, err)
	require.True(t, c.IsDefault)
	require.Equal(t, 1, repo.defaults(1))

	got, err := svc.Get(ctx, 1, a.ID)
	require.NoError(t, err)
	require.False(t, got.IsDefault)
}

func TestDefaultIsScopedPerOrganization(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	org := int64(9)

	_, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "A", Name: "A"})
	require.NoError(t, err)
	orgWarehouse, err := svc.Create(ctx, Warehouse{TenantID: 1, OrganizationID: &org, Code: "B", Name: "B"})
	require.NoError(t, err)
	require.True(t, orgWarehouse.IsDefault)
	require.Equal(t, 2, repo.defaults(1))
}

func TestDeactivateBlocksStockAndDefault(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "A", Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: "B", Name: "B"})
	require.NoError(t, err)

	err = svc.Deactivate(ctx, 1, a.ID)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	require.NoError(t, svc.Deactivate(ctx, 1, b.ID))
	got, err := svc.Get(ctx, 1, b.ID)
	require.NoError(t, err)
	require.False(t, got.CanAcceptStock())
	require.False(t, got.CanIssueStock())

	err = svc.SetDefault(ctx, 1, b.ID)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	require.NoError(t, svc.Activate(ctx, 1, b.ID))
	require.NoError(t, svc.SetDefault(ctx, 1, b.ID))
}

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Warehouse{TenantID: 1, Code: " ", Name: "Blank"})
	require.ErrorIs(t, err, shared.ErrInvalidOperation)

	_, err = svc.Create(ctx, Warehouse{TenantID: 1, Code: "A", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Warehouse{TenantID: 1, Code: "A", Name: "Again"})
	require.ErrorIs(t, err, ErrDuplicateCode)

	_, err = svc.Get(ctx, 2, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
