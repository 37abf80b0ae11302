package code

import (
	"go.uber.org/fx"
)

var Module = fx.Module("code.service",
	fx.Provide(NewService),
	fx.Invoke(RegisterRoutes),
)
