// Package events carries domain events out of the stock ledger core.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Name identifies an outbound event.
type Name string

const (
	StockReceived       Name = "inventory.stock_received"
	StockIssued         Name = "inventory.stock_issued"
	StockTransferred    Name = "inventory.stock_transferred"
	StockAdjusted       Name = "inventory.stock_adjusted"
	StockReserved       Name = "inventory.stock_reserved"
	StockReleased       Name = "inventory.stock_released"
	ReorderPointReached Name = "inventory.reorder_point_reached"
	StockValueChanged   Name = "inventory.stock_value_changed"
	ReorderSuggested    Name = "inventory.reorder_suggested"

	StockCountStarted    Name = "stockcount.started"
	StockCountCompleted  Name = "stockcount.completed"
	StockCountReconciled Name = "stockcount.reconciled"
	StockCountCancelled  Name = "stockcount.cancelled"

	SerialNumberAllocated   Name = "serials.allocated"
	SerialNumberDeallocated Name = "serials.deallocated"
)

// Event is the envelope handed to publishers.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Name       Name      `json:"name"`
	TenantID   int64     `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps an event with a fresh id and timestamp.
func New(name Name, tenantID int64, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Name:       name,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to external consumers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Fanout publishes to every publisher, returning the first error after trying all.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var firstErr error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
