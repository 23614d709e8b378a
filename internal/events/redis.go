package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel prefix used when none is configured.
const DefaultChannel = "inventory.events"

// RedisPublisher publishes JSON encoded events on a Redis pub/sub channel per event name.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the channel an event name is published on.
func (p *RedisPublisher) Channel(name Name) string {
	return fmt.Sprintf("%s:%s", p.channel, name)
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	if p == nil || p.client == nil {
		return errors.New("events: redis publisher not initialised")
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", evt.Name, err)
	}
	return p.client.Publish(ctx, p.Channel(evt.Name), body).Err()
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(ctx context.Context, evt Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "domain event",
		slog.String("event", string(evt.Name)),
		slog.String("event_id", evt.ID.String()),
		slog.Int64("tenant_id", evt.TenantID),
	)
	return nil
}
