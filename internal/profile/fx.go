package profile

import (
	"github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/profile/repository"
	"github.com/smallbiznis/toolhub/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Resolver { return svc }),
)
