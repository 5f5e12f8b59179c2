package sessionstore

import (
	"context"

	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sessionstore",
	fx.Provide(provideRegistry),
	fx.Invoke(runRegistry),
)

func provideRegistry(cfg config.Config, auth authdomain.Service, resolver profiledomain.Resolver, clk clock.Clock, log *zap.Logger) *Registry {
	return NewRegistry(auth, resolver, clk, log, cfg.Scheduler.SessionStoreIdleTTL)
}

func runRegistry(lc fx.Lifecycle, registry *Registry, bus events.Bus) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				registry.Run(ctx, bus)
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
