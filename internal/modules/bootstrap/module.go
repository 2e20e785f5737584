package bootstrap

import (
	"go.uber.org/fx"

	"signal_bot/internal/modules/bootstrap/service"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			service.NewWarmuper,
		),
	)
}
