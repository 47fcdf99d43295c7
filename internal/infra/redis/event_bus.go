package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"practice-duel-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const eventChannelPrefix = "duel:events:"

// EventSink receives events relayed from Redis, typically the local app.Hub.
type EventSink interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
}

// EventBus publishes room events on Redis pub/sub so every instance can
// fan them out to its own subscribers.
type EventBus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewEventBus(client *redis.Client, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: client, logger: logger}
}

func (b *EventBus) Publish(ctx context.Context, event domain.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, eventChannelPrefix+event.RoomID, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Relay forwards every room event on the bus into sink until ctx is done.
// ready is closed once the pattern subscription is confirmed.
func (b *EventBus) Relay(ctx context.Context, sink EventSink, ready chan<- struct{}) error {
	pubsub := b.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event domain.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed room event", "channel", msg.Channel, "error", err)
				continue
			}
			if event.RoomID == "" {
				event.RoomID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			}
			if err := sink.Publish(ctx, event); err != nil {
				b.logger.Warn("relay room event failed", "room_id", event.RoomID, "error", err)
			}
		}
	}
}
