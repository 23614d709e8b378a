package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// ReorderNotifyPayload describes one item to replenish.
type ReorderNotifyPayload struct {
	TenantID          int64           `json:"tenant_id"`
	ProductID         int64           `json:"product_id"`
	WarehouseID       int64           `json:"warehouse_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	SuggestedQuantity decimal.Decimal `json:"suggested_quantity"`
	DaysToStockout    *int64          `json:"days_to_stockout,omitempty"`
	Priority          int             `json:"priority"`
}

// NewReorderNotifyTask builds a notification task.
func NewReorderNotifyTask(payload ReorderNotifyPayload) (*asynq.Task, error) {
	return newTask(TaskReorderNotify, payload, asynq.Queue(QueueNotifications), asynq.MaxRetry(5))
}

// ReorderNotifyJob republishes reorder suggestions for purchasing consumers.
type ReorderNotifyJob struct {
	Publisher events.Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReorderNotifyJob initialises the notification handler.
func NewReorderNotifyJob(publisher events.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderNotifyJob {
	return &ReorderNotifyJob{Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle publishes an inventory.reorder_suggested event.
func (j *ReorderNotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Publisher == nil {
		return errors.New("reorder notify: handler not configured")
	}
	var payload ReorderNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reorder notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 || payload.ProductID <= 0 || payload.WarehouseID <= 0 {
		return fmt.Errorf("reorder notify: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReorderNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Publisher.Publish(ctx, events.New(events.ReorderSuggested, payload.TenantID, payload)); err != nil {
		return fmt.Errorf("reorder notify: publish: %w", err)
	}
	j.logger().Info("reorder suggested",
		slog.Int64("tenant_id", payload.TenantID),
		slog.Int64("product_id", payload.ProductID),
		slog.Int64("warehouse_id", payload.WarehouseID),
		slog.String("suggested_quantity", payload.SuggestedQuantity.String()),
		slog.Int("priority", payload.Priority),
	)
	return nil
}

func (j *ReorderNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderNotify))
	}
	return slog.Default().With(slog.String("job", TaskReorderNotify))
}

func (j *ReorderNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
