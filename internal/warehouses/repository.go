package warehouses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Warehouse, error)
}

// TxRepository exposes the statements run inside a warehouse transaction.
type TxRepository interface {
	Get(ctx context.Context, tenantID, id int64) (Warehouse, error)
	FindDefault(ctx context.Context, tenantID int64, organizationID *int64) (Warehouse, error)
	Insert(ctx context.Context, w Warehouse) (int64, error)
	Update(ctx context.Context, w Warehouse) error
	ClearDefault(ctx context.Context, tenantID int64, organizationID *int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	q db.Querier
}

const warehouseColumns = `id, tenant_id, organization_id, code, name, address, status, is_default, created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	return getWarehouse(ctx, r.pool, tenantID, id)
}

// Get reads a warehouse by ID, scoped to the tenant.
func (t *txRepository) Get(ctx context.Context, tenantID, id int64) (Warehouse, error) {
	return getWarehouse(ctx, t.q, tenantID, id)
}

func (t *txRepository) FindDefault(ctx context.Context, tenantID int64, organizationID *int64) (Warehouse, error) {
	row := t.q.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses
WHERE tenant_id=$1 AND organization_id IS NOT DISTINCT FROM $2 AND is_default
FOR UPDATE`, tenantID, organizationID)
	w, err := scanWarehouse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.NotFound("default warehouse for tenant", tenantID)
	}
	return w, err
}

func (t *txRepository) Insert(ctx context.Context, w Warehouse) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO warehouses (tenant_id, organization_id, code, name, address, status, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		w.TenantID, w.OrganizationID, w.Code, w.Name, w.Address, string(w.Status), w.IsDefault).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) Update(ctx context.Context, w Warehouse) error {
	cmd, err := t.q.Exec(ctx, `UPDATE warehouses SET code=$3, name=$4, address=$5, status=$6, is_default=$7, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, w.TenantID, w.ID, w.Code, w.Name, w.Address, string(w.Status), w.IsDefault)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("warehouse", w.ID)
	}
	return nil
}

func (t *txRepository) ClearDefault(ctx context.Context, tenantID int64, organizationID *int64) error {
	_, err := t.q.Exec(ctx, `UPDATE warehouses SET is_default=FALSE, updated_at=NOW()
WHERE tenant_id=$1 AND organization_id IS NOT DISTINCT FROM $2 AND is_default`, tenantID, organizationID)
	return err
}

// Lookup reads one warehouse through q, which may be a pool or an open
// transaction owned by another module. The row is share-locked inside a
// transaction so its status cannot change underneath the caller.
func Lookup(ctx context.Context, q db.Querier, tenantID, id int64) (Warehouse, error) {
	row := q.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE tenant_id=$1 AND id=$2 FOR SHARE`, tenantID, id)
	w, err := scanWarehouse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.NotFound("warehouse", id)
	}
	return w, err
}

func getWarehouse(ctx context.Context, q db.Querier, tenantID, id int64) (Warehouse, error) {
	row := q.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	w, err := scanWarehouse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.NotFound("warehouse", id)
	}
	return w, err
}

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	var status string
	err := row.Scan(&w.ID, &w.TenantID, &w.OrganizationID, &w.Code, &w.Name, &w.Address, &status, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt)
	w.Status = Status(status)
	return w, err
}
