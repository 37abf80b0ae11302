package voucher

import (
	"go.uber.org/fx"
)

var Module = fx.Module("voucher.service",
	fx.Provide(NewService),
	fx.Invoke(RegisterRoutes),
)
