package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"VibeQ/logger"
	"VibeQ/model"

	"github.com/go-redis/redis/v8"
)

const eventChannel = "vibeq:events"

// EventBus fans change events out to every server instance over Redis
// pub/sub.
type EventBus struct {
	client *redis.Client
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

// Publish sends event to all subscribers.
func (b *EventBus) Publish(ctx context.Context, event model.Event) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, eventChannel, data).Err()
}

// Subscribe delivers every received event to deliver until ctx is done.
// It returns once the subscription is confirmed, and the returned channel is
// closed when delivery stops.
func (b *EventBus) Subscribe(ctx context.Context, deliver func(model.Event)) (<-chan struct{}, error) {
	if b.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	sub := b.client.Subscribe(ctx, eventChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event model.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("invalid event payload", logger.ErrorField(err))
					continue
				}
				deliver(event)
			}
		}
	}()
	return done, nil
}
