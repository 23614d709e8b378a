package jobs

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// QueuePublisher turns ReorderPointReached events into reorder notification
// tasks. Other events are ignored.
type QueuePublisher struct {
	queue Enqueuer
	now   func() time.Time
}

// NewQueuePublisher builds a publisher enqueueing on queue.
func NewQueuePublisher(queue Enqueuer) *QueuePublisher {
	return &QueuePublisher{queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

// Publish implements events.Publisher.
func (p *QueuePublisher) Publish(ctx context.Context, evt events.Event) error {
	if p == nil || p.queue == nil || evt.Name != events.ReorderPointReached {
		return nil
	}
	var reached inventory.ReorderPointReachedEvent
	switch payload := evt.Payload.(type) {
	case inventory.ReorderPointReachedEvent:
		reached = payload
	case *inventory.ReorderPointReachedEvent:
		if payload == nil {
			return nil
		}
		reached = *payload
	default:
		return nil
	}
	task, err := NewReorderNotifyTask(ReorderNotifyPayload{
		TenantID:          reached.TenantID,
		ProductID:         reached.ProductID,
		WarehouseID:       reached.WarehouseID,
		AvailableQuantity: reached.AvailableQuantity,
		SuggestedQuantity: reached.SuggestedQuantity,
		Priority:          priorityFor(reached),
	})
	if err != nil {
		return err
	}
	key := inventory.ItemKey{TenantID: reached.TenantID, ProductID: reached.ProductID, WarehouseID: reached.WarehouseID}
	return enqueueOnce(ctx, p.queue, task, reorderTaskID(key, p.now()))
}

func priorityFor(evt inventory.ReorderPointReachedEvent) int {
	rp := evt.ReorderPoint
	item := inventory.StockItem{AvailableQuantity: evt.AvailableQuantity, ReorderPoint: &rp}
	return inventory.Priority(item)
}
