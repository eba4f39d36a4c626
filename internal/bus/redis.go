package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"relay/infrastructure"
	"relay/internal/cache"
)

const channel = "relay:events"

// RedisBus carries events over a Redis pub/sub channel. Delivery is fan-out
// to every subscribed process; each process filters out its own publishes by
// origin id.
type RedisBus struct {
	cache  *cache.RedisCache
	origin string
	logger *slog.Logger
}

func NewRedisBus(c *cache.RedisCache, origin string, logger *slog.Logger) *RedisBus {
	return &RedisBus{cache: c, origin: origin, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	event.Origin = b.origin
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrValidation, err)
	}
	if err := b.cache.Client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(Event)) error {
	sub := b.cache.Client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("%w: subscription closed", infrastructure.ErrTransientStorage)
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed bus event", "error", err)
				continue
			}
			if event.Origin == b.origin {
				continue
			}
			handler(event)
		}
	}
}
