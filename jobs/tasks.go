package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries per-item reorder notifications.
	QueueNotifications = "notifications"

	// TaskInventoryRevaluation recalculates average costs of every stocked item.
	TaskInventoryRevaluation = "inventory:revaluation"
	// TaskReorderScan looks for items at or below their reorder point.
	TaskReorderScan = "inventory:reorder_scan"
	// TaskReorderNotify announces one reorder suggestion.
	TaskReorderNotify = "inventory:reorder_notify"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "inventory:idempotency_cleanup"
)

var triggerable = map[string]func(time.Time) (*asynq.Task, error){
	"revaluation": func(at time.Time) (*asynq.Task, error) {
		return NewInventoryRevaluationTask(InventoryRevaluationPayload{ScheduledFor: at})
	},
	"reorder_scan": func(at time.Time) (*asynq.Task, error) {
		return NewReorderScanTask(ReorderScanPayload{ScheduledFor: at})
	},
	"idempotency_cleanup": func(time.Time) (*asynq.Task, error) {
		return NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	},
}

// TriggerableJobs lists the job names accepted by NewTriggerTask.
func TriggerableJobs() []string {
	names := make([]string, 0, len(triggerable))
	for name := range triggerable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTriggerTask builds the task behind a short job name for manual runs.
func NewTriggerTask(name string, at time.Time) (*asynq.Task, error) {
	build, ok := triggerable[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown job %q", name)
	}
	return build(at)
}

func newTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, opts...), nil
}
