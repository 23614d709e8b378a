package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

const scanConcurrency = 4

// ReorderScanPayload selects the scope of a scan. Zero values mean every
// configured tenant and every warehouse.
type ReorderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	TenantID     int64     `json:"tenant_id,omitempty"`
	WarehouseID  int64     `json:"warehouse_id,omitempty"`
}

// NewReorderScanTask builds a reorder scan task.
func NewReorderScanTask(payload ReorderScanPayload) (*asynq.Task, error) {
	return newTask(TaskReorderScan, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Suggester proposes replenishment for the items matching a filter.
type Suggester interface {
	Suggestions(ctx context.Context, filter inventory.StockItemFilter) ([]inventory.ReorderSuggestion, error)
}

// ReorderScanJob turns reorder suggestions into notification tasks.
type ReorderScanJob struct {
	Analyzer Suggester
	Queue    Enqueuer
	Tenants  []int64
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(analyzer Suggester, queue Enqueuer, tenants []int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{
		Analyzer: analyzer,
		Queue:    queue,
		Tenants:  tenants,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle scans tenants concurrently. Notifications are keyed per item and
// day so repeated scans on the same day enqueue each item once.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Analyzer == nil || j.Queue == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reorder scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tenants := j.Tenants
	if payload.TenantID > 0 {
		tenants = []int64{payload.TenantID}
	}

	tracker := j.metrics().Track(TaskReorderScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	counts := make([]int, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, tenantID := range tenants {
		i, tenantID := i, tenantID
		g.Go(func() error {
			n, err := j.scanTenant(gctx, tenantID, payload.WarehouseID)
			if err != nil {
				return fmt.Errorf("reorder scan: tenant %d: %w", tenantID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.logger().Error("scan failed", slog.Any("error", err))
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	j.logger().Info("completed reorder scan", slog.Int("tenants", len(tenants)), slog.Int("suggestions", total))
	return nil
}

func (j *ReorderScanJob) scanTenant(ctx context.Context, tenantID, warehouseID int64) (int, error) {
	suggestions, err := j.Analyzer.Suggestions(ctx, inventory.StockItemFilter{TenantID: tenantID, WarehouseID: warehouseID})
	if err != nil {
		return 0, err
	}
	day := j.now()
	for _, s := range suggestions {
		task, err := NewReorderNotifyTask(ReorderNotifyPayload{
			TenantID:          s.Item.TenantID,
			ProductID:         s.Item.ProductID,
			WarehouseID:       s.Item.WarehouseID,
			AvailableQuantity: s.Item.AvailableQuantity,
			SuggestedQuantity: s.SuggestedQuantity,
			DaysToStockout:    s.DaysToStockout,
			Priority:          s.Priority,
		})
		if err != nil {
			return 0, err
		}
		if err := enqueueOnce(ctx, j.Queue, task, reorderTaskID(s.Item.Key(), day)); err != nil {
			return 0, err
		}
	}
	j.metrics().AddReorderSuggestions(tenantID, len(suggestions))
	return len(suggestions), nil
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskReorderScan))
}

func (j *ReorderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func reorderTaskID(key inventory.ItemKey, day time.Time) string {
	return fmt.Sprintf("reorder:%d:%d:%d:%s", key.TenantID, key.ProductID, key.WarehouseID, day.UTC().Format("20060102"))
}

// enqueueOnce submits task under id, treating an existing task with the same
// id as success.
func enqueueOnce(ctx context.Context, queue Enqueuer, task *asynq.Task, id string) error {
	_, err := queue.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.Queue(QueueNotifications), asynq.Retention(24*time.Hour))
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
