package onboarding

import (
	"github.com/smallbiznis/toolhub/internal/sessionstore"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding",
	fx.Provide(New),
	fx.Provide(func(r *sessionstore.Registry) ProfileRefresher { return r }),
)
