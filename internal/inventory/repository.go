package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/warehouses"
)

// ErrStockItemNotFound indicates a missing stock item row.
var ErrStockItemNotFound = &shared.Error{Kind: shared.KindNotFound, Message: "stock item not found"}

func stockItemNotFound(key ItemKey) error {
	return shared.NotFound("stock item", fmt.Sprintf("for product %d in warehouse %d", key.ProductID, key.WarehouseID))
}

func notFoundAs(err error, key ItemKey) error {
	if errors.Is(err, ErrStockItemNotFound) {
		return stockItemNotFound(key)
	}
	return err
}

// SnapshotReader exposes the reads valuation and reorder analysis run against
// one consistent snapshot.
type SnapshotReader interface {
	GetStockItem(ctx context.Context, key ItemKey) (StockItem, error)
	ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error)
	// ListReceipts returns RECEIPT movements into the item's warehouse, oldest
	// first unless newestFirst is set. limit <= 0 returns every receipt.
	ListReceipts(ctx context.Context, key ItemKey, newestFirst bool, limit int) ([]Movement, error)
	SumIssued(ctx context.Context, key ItemKey, since time.Time) (decimal.Decimal, error)
	ProductCost(ctx context.Context, tenantID, productID int64) (ProductCost, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	SnapshotReader
	GetWarehouse(ctx context.Context, tenantID, warehouseID int64) (warehouses.Warehouse, error)
	GetStockItemForUpdate(ctx context.Context, key ItemKey) (StockItem, error)
	// EnsureStockItemForUpdate locks the item, creating an empty one first if needed.
	EnsureStockItemForUpdate(ctx context.Context, key ItemKey) (StockItem, error)
	UpdateStockItem(ctx context.Context, item StockItem) error
	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type pgQueries struct {
	q db.Querier
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgQueries{q: tx})
	})
}

// WithSnapshot executes the callback inside a read-only snapshot.
func (r *Repository) WithSnapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error {
	return db.WithSnapshot(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgQueries{q: tx})
	})
}

const stockItemColumns = `id, tenant_id, product_id, warehouse_id, quantity, available_quantity, reserved_quantity,
average_cost, reorder_point, reorder_quantity, minimum_quantity, maximum_quantity, created_at, updated_at`

const movementColumns = `id, tenant_id, product_id, from_warehouse_id, to_warehouse_id, movement_type, quantity, cost,
reference_type, reference_id, reference_number, movement_date, notes, created_by, created_at`

func (p *pgQueries) GetWarehouse(ctx context.Context, tenantID, warehouseID int64) (warehouses.Warehouse, error) {
	return warehouses.Lookup(ctx, p.q, tenantID, warehouseID)
}

func (p *pgQueries) GetStockItem(ctx context.Context, key ItemKey) (StockItem, error) {
	return p.stockItem(ctx, key, "")
}

func (p *pgQueries) GetStockItemForUpdate(ctx context.Context, key ItemKey) (StockItem, error) {
	return p.stockItem(ctx, key, " FOR UPDATE")
}

func (p *pgQueries) EnsureStockItemForUpdate(ctx context.Context, key ItemKey) (StockItem, error) {
	_, err := p.q.Exec(ctx, `INSERT INTO stock_items (tenant_id, product_id, warehouse_id, quantity, available_quantity,
reserved_quantity, average_cost, created_at, updated_at)
VALUES ($1, $2, $3, 0, 0, 0, 0, NOW(), NOW())
ON CONFLICT (tenant_id, product_id, warehouse_id) DO NOTHING`, key.TenantID, key.ProductID, key.WarehouseID)
	if err != nil {
		return StockItem{}, fmt.Errorf("inventory: ensure stock item: %w", err)
	}
	return p.GetStockItemForUpdate(ctx, key)
}

func (p *pgQueries) stockItem(ctx context.Context, key ItemKey, lock string) (StockItem, error) {
	row := p.q.QueryRow(ctx, `SELECT `+stockItemColumns+` FROM stock_items
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3`+lock, key.TenantID, key.ProductID, key.WarehouseID)
	item, err := scanStockItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrStockItemNotFound
	}
	return item, err
}

func (p *pgQueries) UpdateStockItem(ctx context.Context, item StockItem) error {
	tag, err := p.q.Exec(ctx, `UPDATE stock_items SET quantity=$4, available_quantity=$5, reserved_quantity=$6,
average_cost=$7, reorder_point=$8, reorder_quantity=$9, minimum_quantity=$10, maximum_quantity=$11, updated_at=$12
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3`,
		item.TenantID, item.ProductID, item.WarehouseID,
		item.Quantity, item.AvailableQuantity, item.ReservedQuantity, item.AverageCost,
		nullable(item.ReorderPoint), nullable(item.ReorderQuantity), nullable(item.MinimumQuantity), nullable(item.MaximumQuantity),
		item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inventory: update stock item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockItemNotFound
	}
	return nil
}

func (p *pgQueries) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	var refID *int64
	if mv.Reference.ID != 0 {
		refID = &mv.Reference.ID
	}
	err := p.q.QueryRow(ctx, `INSERT INTO stock_movements (tenant_id, product_id, from_warehouse_id, to_warehouse_id,
movement_type, quantity, cost, reference_type, reference_id, reference_number, movement_date, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), $11, $12, $13, $14)
RETURNING id`,
		mv.TenantID, mv.ProductID, mv.FromWarehouseID, mv.ToWarehouseID,
		string(mv.Type), mv.Quantity, nullable(mv.Cost), string(mv.Reference.Kind), refID, mv.Reference.Number,
		mv.MovementDate, mv.Notes, mv.CreatedBy, mv.CreatedAt).Scan(&mv.ID)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return mv, nil
}

func (p *pgQueries) ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error) {
	rows, err := p.q.Query(ctx, `SELECT `+stockItemColumns+` FROM stock_items
WHERE tenant_id=$1 AND ($2::bigint = 0 OR warehouse_id=$2) AND ($3::bigint = 0 OR product_id=$3)
ORDER BY product_id, warehouse_id`, filter.TenantID, filter.WarehouseID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockItem, error) {
		return scanStockItem(row)
	})
}

func (p *pgQueries) ListReceipts(ctx context.Context, key ItemKey, newestFirst bool, limit int) ([]Movement, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	sql := `SELECT ` + movementColumns + ` FROM stock_movements
WHERE tenant_id=$1 AND product_id=$2 AND to_warehouse_id=$3 AND movement_type='RECEIPT'
ORDER BY movement_date ` + order + `, id ` + order
	args := []any{key.TenantID, key.ProductID, key.WarehouseID}
	if limit > 0 {
		sql += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := p.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Movement, error) {
		return scanMovement(row)
	})
}

func (p *pgQueries) SumIssued(ctx context.Context, key ItemKey, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := p.q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_movements
WHERE tenant_id=$1 AND product_id=$2 AND from_warehouse_id=$3 AND movement_type='ISSUE' AND movement_date >= $4`,
		key.TenantID, key.ProductID, key.WarehouseID, since).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: sum issued: %w", err)
	}
	return total, nil
}

// ProductCost reads costs from the product catalogue. A missing product has no costs.
func (p *pgQueries) ProductCost(ctx context.Context, tenantID, productID int64) (ProductCost, error) {
	var standard, cost decimal.NullDecimal
	err := p.q.QueryRow(ctx, `SELECT standard_cost, cost FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID).
		Scan(&standard, &cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductCost{}, nil
	}
	if err != nil {
		return ProductCost{}, fmt.Errorf("inventory: product cost: %w", err)
	}
	return ProductCost{StandardCost: fromNullable(standard), Cost: fromNullable(cost)}, nil
}

func (p *pgQueries) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		where = []string{"tenant_id=$1", "product_id=$2"}
		args  = []any{filter.TenantID, filter.ProductID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.WarehouseID != 0 {
		ph := arg(filter.WarehouseID)
		where = append(where, "(from_warehouse_id="+ph+" OR to_warehouse_id="+ph+")")
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, "movement_type = ANY("+arg(types)+")")
	}
	if !filter.From.IsZero() {
		where = append(where, "movement_date >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "movement_date <= "+arg(filter.To))
	}
	sql := `SELECT ` + movementColumns + ` FROM stock_movements WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY movement_date DESC, id DESC LIMIT ` + arg(filter.Limit)
	rows, err := p.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Movement, error) {
		return scanMovement(row)
	})
}

func scanStockItem(row pgx.Row) (StockItem, error) {
	var (
		item                     StockItem
		reorderPoint, reorderQty decimal.NullDecimal
		minQty, maxQty           decimal.NullDecimal
	)
	err := row.Scan(&item.ID, &item.TenantID, &item.ProductID, &item.WarehouseID,
		&item.Quantity, &item.AvailableQuantity, &item.ReservedQuantity, &item.AverageCost,
		&reorderPoint, &reorderQty, &minQty, &maxQty, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return StockItem{}, err
	}
	item.ReorderPoint = fromNullable(reorderPoint)
	item.ReorderQuantity = fromNullable(reorderQty)
	item.MinimumQuantity = fromNullable(minQty)
	item.MaximumQuantity = fromNullable(maxQty)
	return item, nil
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		mv        Movement
		mvType    string
		cost      decimal.NullDecimal
		refKind   *string
		refID     *int64
		refNumber *string
		notes     *string
	)
	err := row.Scan(&mv.ID, &mv.TenantID, &mv.ProductID, &mv.FromWarehouseID, &mv.ToWarehouseID,
		&mvType, &mv.Quantity, &cost, &refKind, &refID, &refNumber, &mv.MovementDate, &notes, &mv.CreatedBy, &mv.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	mv.Type = MovementType(mvType)
	mv.Cost = fromNullable(cost)
	if refKind != nil {
		mv.Reference.Kind = ReferenceKind(*refKind)
	}
	if refID != nil {
		mv.Reference.ID = *refID
	}
	if refNumber != nil {
		mv.Reference.Number = *refNumber
	}
	if notes != nil {
		mv.Notes = *notes
	}
	return mv, nil
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
