package events

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth.events",
	fx.Provide(NewBus),
)

func NewBus(lc fx.Lifecycle, client *redis.Client, log *zap.Logger) Bus {
	if client == nil {
		return NewLocalBus()
	}

	bus := NewRedisBus(client, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				bus.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return bus
}
