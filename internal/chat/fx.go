package chat

import (
	"github.com/smallbiznis/toolhub/internal/chat/repository"
	"github.com/smallbiznis/toolhub/internal/chat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chat.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
