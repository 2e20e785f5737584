package telegram

import (
	"go.uber.org/fx"

	"signal_bot/internal/notify"
	market "signal_bot/internal/modules/market/service"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			notify.NewTelegram,

			// адаптер: *notify.Telegram -> market.ServiceNotifier
			func(t *notify.Telegram) market.ServiceNotifier {
				return t
			},
		),
	)
}
