package market

import (
	"go.uber.org/fx"

	"signal_bot/internal/modules/market/service"
)

// Module — клиент рынка: REST-история и WebSocket-стрим клайнов.
func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			service.NewClient,
		),
	)
}
