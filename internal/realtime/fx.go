package realtime

import (
	"context"
	"strings"

	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/smallbiznis/toolhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverLocal    = "local"
)

var Module = fx.Module("realtime",
	fx.Provide(NewHub),
	fx.Provide(provideEmitter),
)

// ResolveDriver picks postgres LISTEN/NOTIFY when the database is postgres.
func ResolveDriver(cfg config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Realtime.Driver))
	if driver != "" {
		return driver
	}
	if strings.EqualFold(cfg.DBType, "postgres") {
		return DriverPostgres
	}
	return DriverLocal
}

type emitterParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Hub       *Hub
	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

func provideEmitter(p emitterParams) Emitter {
	p.Hub.OnDrop(func(c Change) {
		p.Metrics.RecordRealtimeDropped(context.Background(), c.Table)
	})

	if ResolveDriver(p.Config) != DriverPostgres {
		return NewLocalEmitter(p.Hub)
	}

	listener := NewListener(db.PostgresDSN(p.Config), p.Hub, p.Log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				listener.Run(ctx)
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
	return noopEmitter{}
}
