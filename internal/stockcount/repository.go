package stockcount

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxRepository exposes the statements run inside a count transaction.
type TxRepository interface {
	// GetForUpdate locks the count header and returns it with its items.
	GetForUpdate(ctx context.Context, tenantID, id int64) (Count, error)
	Insert(ctx context.Context, count Count) (Count, error)
	UpdateHeader(ctx context.Context, count Count) error
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
}

// Repository persists stock counts in PostgreSQL.
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

const countColumns = `id, tenant_id, organization_id, count_number, warehouse_id, status, count_date,
started_at, completed_at, reconciled_at, notes, created_by, created_at, updated_at`

const itemColumns = `id, stock_count_id, product_id, location, system_quantity, counted_quantity, unit_cost,
variance, variance_value, notes, counted_by, counted_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

// Get reads a count and its items in one snapshot.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Count, error) {
	var count Count
	err := db.WithSnapshot(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		count, err = getCount(ctx, tx, tenantID, id, "")
		return err
	})
	return count, err
}

// Next formats the next value of the count number sequence.
func (r *Repository) Next(ctx context.Context, tenantID int64, prefix string) (string, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('stock_count_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, tenantID, n), nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Count, error) {
	return getCount(ctx, t.q, tenantID, id, " FOR UPDATE")
}

func (t *txRepository) Insert(ctx context.Context, c Count) (Count, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO stock_counts (tenant_id, organization_id, count_number, warehouse_id, status,
count_date, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		c.TenantID, c.OrganizationID, c.Number, c.WarehouseID, string(c.Status),
		c.CountDate, c.Notes, c.CreatedBy, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		return Count{}, fmt.Errorf("stockcount: insert count: %w", err)
	}
	return c, nil
}

func (t *txRepository) UpdateHeader(ctx context.Context, c Count) error {
	tag, err := t.q.Exec(ctx, `UPDATE stock_counts SET status=$3, started_at=$4, completed_at=$5, reconciled_at=$6,
notes=$7, updated_at=$8 WHERE tenant_id=$1 AND id=$2`,
		c.TenantID, c.ID, string(c.Status), c.StartedAt, c.CompletedAt, c.ReconciledAt, c.Notes, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("stockcount: update count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("stock count", c.ID)
	}
	return nil
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO stock_count_items (stock_count_id, product_id, location, system_quantity,
unit_cost, variance, variance_value, notes)
VALUES ($1,$2,$3,0,0,0,0,$4) RETURNING id`,
		item.CountID, item.ProductID, item.Location, item.Notes).Scan(&item.ID)
	if err != nil {
		return Item{}, fmt.Errorf("stockcount: insert item: %w", err)
	}
	item.SystemQuantity = decimal.Zero
	item.UnitCost = decimal.Zero
	item.Variance = decimal.Zero
	item.VarianceValue = decimal.Zero
	return item, nil
}

func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	var counted decimal.NullDecimal
	if item.CountedQuantity != nil {
		counted = decimal.NewNullDecimal(*item.CountedQuantity)
	}
	var countedBy *int64
	if item.CountedBy != 0 {
		countedBy = &item.CountedBy
	}
	_, err := t.q.Exec(ctx, `UPDATE stock_count_items SET system_quantity=$2, counted_quantity=$3, unit_cost=$4,
variance=$5, variance_value=$6, notes=$7, counted_by=$8, counted_at=$9 WHERE id=$1`,
		item.ID, item.SystemQuantity, counted, item.UnitCost, item.Variance, item.VarianceValue,
		item.Notes, countedBy, item.CountedAt)
	if err != nil {
		return fmt.Errorf("stockcount: update item: %w", err)
	}
	return nil
}

func getCount(ctx context.Context, q db.Querier, tenantID, id int64, lock string) (Count, error) {
	row := q.QueryRow(ctx, `SELECT `+countColumns+` FROM stock_counts WHERE tenant_id=$1 AND id=$2`+lock, tenantID, id)
	var c Count
	var status string
	err := row.Scan(&c.ID, &c.TenantID, &c.OrganizationID, &c.Number, &c.WarehouseID, &status, &c.CountDate,
		&c.StartedAt, &c.CompletedAt, &c.ReconciledAt, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Count{}, shared.NotFound("stock count", id)
	}
	if err != nil {
		return Count{}, err
	}
	c.Status = Status(status)

	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM stock_count_items WHERE stock_count_id=$1 ORDER BY id`, c.ID)
	if err != nil {
		return Count{}, err
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var (
			item      Item
			counted   decimal.NullDecimal
			countedBy *int64
		)
		err := row.Scan(&item.ID, &item.CountID, &item.ProductID, &item.Location, &item.SystemQuantity, &counted,
			&item.UnitCost, &item.Variance, &item.VarianceValue, &item.Notes, &countedBy, &item.CountedAt)
		if counted.Valid {
			item.CountedQuantity = &counted.Decimal
		}
		if countedBy != nil {
			item.CountedBy = *countedBy
		}
		return item, err
	})
	if err != nil {
		return Count{}, err
	}
	return c, nil
}
