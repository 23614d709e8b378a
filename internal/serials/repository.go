package serials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxRepository exposes the statements run inside a serial number transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID int64, serial string) (SerialNumber, error)
	Insert(ctx context.Context, sn SerialNumber) (SerialNumber, error)
	Update(ctx context.Context, sn SerialNumber) error
}

// Repository persists serial numbers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	q db.Querier
}

const serialColumns = `id, tenant_id, serial_number, product_id, warehouse_id, location, status,
reference_type, reference_id, reference_number, allocation_type, allocation_id, allocation_number,
received_date, sold_date, warranty_months, warranty_expiry, notes, cost, created_at, updated_at`

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (r *Repository) Get(ctx context.Context, tenantID int64, serial string) (SerialNumber, error) {
	return getSerial(ctx, r.pool, tenantID, serial, "")
}

func (r *Repository) ListAvailable(ctx context.Context, tenantID, productID, warehouseID int64) ([]SerialNumber, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serialColumns+` FROM serial_numbers
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3 AND status='IN_STOCK'
ORDER BY received_date, id`, tenantID, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SerialNumber, error) {
		return scanSerial(row)
	})
}

func (t *txRepository) GetForUpdate(ctx context.Context, tenantID int64, serial string) (SerialNumber, error) {
	return getSerial(ctx, t.q, tenantID, serial, " FOR UPDATE")
}

func (t *txRepository) Insert(ctx context.Context, sn SerialNumber) (SerialNumber, error) {
	ref, alloc := refColumns(sn.Reference), refColumns(sn.Allocation)
	err := t.q.QueryRow(ctx, `INSERT INTO serial_numbers (tenant_id, serial_number, product_id, warehouse_id, location, status,
reference_type, reference_id, reference_number, allocation_type, allocation_id, allocation_number,
received_date, sold_date, warranty_months, warranty_expiry, notes, cost, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20) RETURNING id`,
		sn.TenantID, sn.Serial, sn.ProductID, sn.WarehouseID, sn.Location, string(sn.Status),
		ref.kind, ref.id, ref.number, alloc.kind, alloc.id, alloc.number,
		sn.ReceivedDate, sn.SoldDate, sn.WarrantyMonths, sn.WarrantyExpiry, sn.Notes, nullableCost(sn.Cost),
		sn.CreatedAt, sn.UpdatedAt).Scan(&sn.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return SerialNumber{}, ErrDuplicateSerial
		}
		return SerialNumber{}, fmt.Errorf("serials: insert: %w", err)
	}
	return sn, nil
}

func (t *txRepository) Update(ctx context.Context, sn SerialNumber) error {
	alloc := refColumns(sn.Allocation)
	tag, err := t.q.Exec(ctx, `UPDATE serial_numbers SET warehouse_id=$3, location=$4, status=$5,
allocation_type=$6, allocation_id=$7, allocation_number=$8, sold_date=$9, notes=$10, updated_at=$11
WHERE tenant_id=$1 AND id=$2`,
		sn.TenantID, sn.ID, sn.WarehouseID, sn.Location, string(sn.Status),
		alloc.kind, alloc.id, alloc.number, sn.SoldDate, sn.Notes, sn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("serials: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("serial number", sn.Serial)
	}
	return nil
}

type refRow struct {
	kind   *string
	id     *int64
	number *string
}

func refColumns(ref inventory.Reference) refRow {
	var row refRow
	if ref.Kind != inventory.RefNone {
		kind := string(ref.Kind)
		row.kind = &kind
	}
	if ref.ID != 0 {
		row.id = &ref.ID
	}
	if ref.Number != "" {
		row.number = &ref.Number
	}
	return row
}

func (r refRow) reference() inventory.Reference {
	var ref inventory.Reference
	if r.kind != nil {
		ref.Kind = inventory.ReferenceKind(*r.kind)
	}
	if r.id != nil {
		ref.ID = *r.id
	}
	if r.number != nil {
		ref.Number = *r.number
	}
	return ref
}

func nullableCost(cost *decimal.Decimal) decimal.NullDecimal {
	if cost == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*cost)
}

func getSerial(ctx context.Context, q db.Querier, tenantID int64, serial, lock string) (SerialNumber, error) {
	row := q.QueryRow(ctx, `SELECT `+serialColumns+` FROM serial_numbers WHERE tenant_id=$1 AND serial_number=$2`+lock, tenantID, serial)
	sn, err := scanSerial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SerialNumber{}, shared.NotFound("serial number", serial)
	}
	return sn, err
}

func scanSerial(row pgx.Row) (SerialNumber, error) {
	var (
		sn         SerialNumber
		status     string
		ref, alloc refRow
		cost       decimal.NullDecimal
	)
	err := row.Scan(&sn.ID, &sn.TenantID, &sn.Serial, &sn.ProductID, &sn.WarehouseID, &sn.Location, &status,
		&ref.kind, &ref.id, &ref.number, &alloc.kind, &alloc.id, &alloc.number,
		&sn.ReceivedDate, &sn.SoldDate, &sn.WarrantyMonths, &sn.WarrantyExpiry, &sn.Notes, &cost,
		&sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		return SerialNumber{}, err
	}
	sn.Status = Status(status)
	sn.Reference = ref.reference()
	sn.Allocation = alloc.reference()
	if cost.Valid {
		sn.Cost = &cost.Decimal
	}
	return sn, nil
}
