package events

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/toolhub/internal/auth/domain"
	"go.uber.org/zap"
)

const DefaultChannel = "toolhub:auth-events"

// RedisBus publishes through redis pub/sub so every replica's session stores
// see every sign-in and sign-out.
type RedisBus struct {
	*LocalBus
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{
		LocalBus: NewLocalBus(),
		client:   client,
		channel:  DefaultChannel,
		log:      log.Named("auth.events"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Run relays redis messages to local subscribers until ctx ends.
func (b *RedisBus) Run(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("discarding malformed auth event", zap.Error(err))
				continue
			}
			b.deliver(event)
		}
	}
}
