package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/locks"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// InventoryRevaluationPayload carries scheduling metadata. A zero TenantID
// revalues every configured tenant; an empty Method uses the default.
type InventoryRevaluationPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	TenantID     int64     `json:"tenant_id,omitempty"`
	Method       string    `json:"method,omitempty"`
}

// NewInventoryRevaluationTask constructs an Asynq task for inventory revaluation.
func NewInventoryRevaluationTask(payload InventoryRevaluationPayload) (*asynq.Task, error) {
	return newTask(TaskInventoryRevaluation, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Revaluer recalculates stored average costs of a tenant.
type Revaluer interface {
	RevalueTenant(ctx context.Context, tenantID int64, method inventory.ValuationMethod) (inventory.RevaluationSummary, error)
}

// Locker serializes work across worker processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// RevaluationJob rewrites average costs under the configured valuation method.
type RevaluationJob struct {
	Valuator Revaluer
	Locker   Locker
	Tenants  []int64
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewRevaluationJob initialises the revaluation handler.
func NewRevaluationJob(valuator Revaluer, locker Locker, tenants []int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevaluationJob {
	return &RevaluationJob{Valuator: valuator, Locker: locker, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle revalues each tenant in turn. A tenant already being revalued by
// another worker is skipped.
func (j *RevaluationJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Valuator == nil {
		return errors.New("inventory revaluation: handler not configured")
	}
	var payload InventoryRevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("inventory revaluation: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	var method inventory.ValuationMethod
	if payload.Method != "" {
		parsed, err := inventory.ParseValuationMethod(payload.Method)
		if err != nil {
			return fmt.Errorf("inventory revaluation: %v: %w", err, asynq.SkipRetry)
		}
		method = parsed
	}
	tenants := j.Tenants
	if payload.TenantID > 0 {
		tenants = []int64{payload.TenantID}
	}

	tracker := j.metrics().Track(TaskInventoryRevaluation)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	for _, tenantID := range tenants {
		err := j.revalue(ctx, tenantID, method)
		if errors.Is(err, locks.ErrNotObtained) {
			logger.Info("revaluation already running, skipping tenant", slog.Int64("tenant_id", tenantID))
			continue
		}
		if err != nil {
			logger.Error("revaluation failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			return err
		}
	}
	logger.Info("completed inventory revaluation",
		slog.Int("tenants", len(tenants)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RevaluationJob) revalue(ctx context.Context, tenantID int64, method inventory.ValuationMethod) error {
	run := func(ctx context.Context) error {
		summary, err := j.Valuator.RevalueTenant(ctx, tenantID, method)
		if err != nil {
			return err
		}
		j.metrics().AddRevalued(tenantID, string(summary.Method), summary.Changed)
		j.logger().Info("tenant revalued",
			slog.Int64("tenant_id", tenantID),
			slog.String("method", string(summary.Method)),
			slog.Int("items", summary.Items),
			slog.Int("changed", summary.Changed),
		)
		return nil
	}
	if j.Locker == nil {
		return run(ctx)
	}
	return j.Locker.WithLock(ctx, shared.RevaluationLockKey(tenantID), run)
}

func (j *RevaluationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryRevaluation))
	}
	return slog.Default().With(slog.String("job", TaskInventoryRevaluation))
}

func (j *RevaluationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
