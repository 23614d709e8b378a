package events

import (
	"context"
	"log/slog"
	"sync"
)

// Buffer collects events raised inside a transaction so they can be published
// once the transaction has committed. A buffer is discarded on rollback.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add queues an event.
func (b *Buffer) Add(evt Event) {
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the queued events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops queued events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Flush publishes queued events in order and empties the buffer. Delivery
// failures are logged; the state change that raised them is already committed.
func (b *Buffer) Flush(ctx context.Context, pub Publisher, logger *slog.Logger) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if pub == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, evt := range pending {
		if err := pub.Publish(ctx, evt); err != nil {
			logger.Warn("publish event", slog.String("event", string(evt.Name)), slog.String("event_id", evt.ID.String()), slog.Any("error", err))
		}
	}
}
