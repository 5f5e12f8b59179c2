package auth

import (
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/auth/repository"
	"github.com/smallbiznis/toolhub/internal/auth/service"
	"github.com/smallbiznis/toolhub/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(session.NewManager),
	fx.Provide(func(bus events.Bus) events.Publisher { return bus }),
	events.Module,
)
