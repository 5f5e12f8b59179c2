package catalog

import (
	"github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/catalog/repository"
	"github.com/smallbiznis/toolhub/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(func(s domain.Service) domain.Searcher { return s }),
)
