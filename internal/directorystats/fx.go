package directorystats

import (
	"context"
	"time"

	"github.com/smallbiznis/toolhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("directory.stats",
	fx.Provide(NewPusher),
	fx.Provide(NewCollector),
	fx.Invoke(startPushLoop),
)

func startPushLoop(lc fx.Lifecycle, cfg config.Config, collector *Collector, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("directory.stats")
	interval := cfg.Stats.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting directory stats push", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				pushOnce(ctx, collector, pusher, log)
				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, collector, pusher, log)
					case <-ctx.Done():
						return
					}
				}
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
}

func pushOnce(ctx context.Context, collector *Collector, pusher Pusher, log *zap.Logger) {
	if err := collector.Refresh(ctx); err != nil {
		log.Warn("refresh directory stats failed", zap.Error(err))
		return
	}
	if err := pusher.Push(ctx, collector.Registry()); err != nil {
		log.Warn("push directory stats failed", zap.Error(err))
	}
}

