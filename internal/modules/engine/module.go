// Package engine связывает конвейер: стрим → агрегатор → фьюзер →
// стор/нотифайер. Порядок старта: прогрев истории, потом стрим.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/fx"

	"signal_bot/internal/aggregator"
	"signal_bot/internal/fuser"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	bootstrap "signal_bot/internal/modules/bootstrap/service"
	"signal_bot/internal/modules/config"
	market "signal_bot/internal/modules/market/service"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/internal/notify"
	"signal_bot/internal/store"
	"signal_bot/pkg/logger"
)

const drainTimeout = 5 * time.Second

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			metrics.New,
			NewAggregator,
			NewFuser,
		),
		fx.Invoke(Run),
	)
}

func NewAggregator(cfg *config.Config) *aggregator.Aggregator {
	return aggregator.New(aggregator.Config{
		WindowSize: cfg.WindowSize,
		Workers:    8,
		QueueSize:  256,
	})
}

func NewFuser(cfg *config.Config, st *store.Store, t *notify.Telegram, m *metrics.Metrics) *fuser.Fuser {
	fcfg := fuser.DefaultConfig()
	fcfg.MinCandles = cfg.MinCandles
	fcfg.MinConfidence = cfg.MinConfidence
	fcfg.Cooldown = cfg.Cooldown()
	fcfg.PreventConflicts = cfg.PreventConflicts
	fcfg.ConflictWindow = cfg.ConflictWindow()
	fcfg.ATRSLMult = cfg.ATRSLMult
	fcfg.ATRTPMult = cfg.ATRTPMult
	fcfg.EnableWyckoff = cfg.EnableWyckoff
	fcfg.EnableElliott = cfg.EnableElliott
	fcfg.EnableRSI = cfg.EnableRSI
	fcfg.EnableMACD = cfg.EnableMACD

	return fuser.New(fcfg, st, t, fuser.WithCounters(m))
}

func Run(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	ctx context.Context,
	cfg *config.Config,
	client *market.Client,
	agg *aggregator.Aggregator,
	f *fuser.Fuser,
	st *store.Store,
	m *metrics.Metrics,
	warmuper *bootstrap.Warmuper,
	state *health.State,
) {
	// стрим живёт на своём контексте: на стопе гасим только его,
	// колбэки дожимаются на корневом
	streamCtx, cancelStream := context.WithCancel(ctx)
	updates := make(chan models.Candle, 4096)
	demuxDone := make(chan struct{})

	// персист закрытой свечи; дубликат — штатная ситуация
	agg.OnClose(func(ctx context.Context, key models.Key, c models.Candle, _ models.Window) {
		m.CandlesCommitted.Inc()
		state.TouchClose(time.Now())
		if err := st.UpsertCandle(ctx, c); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				m.DuplicateCandles.Inc()
				logger.Info("engine: свеча %s open_time=%d уже в сторе", key, c.OpenTime)
				return
			}
			logger.Error("engine: persist %s open_time=%d: %v", key, c.OpenTime, err)
			return
		}
		m.CandlesPersisted.Inc()
	})

	// анализ и фьюз
	agg.OnClose(f.OnCandleClose)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// лимит стримов проверяем до запуска, кривой конфиг — фатал
			if _, err := market.StreamNames(cfg.Symbols, cfg.Timeframes); err != nil {
				return err
			}

			agg.Start(ctx)

			go func() {
				defer close(demuxDone)
				for upd := range updates {
					agg.Process(ctx, upd)
				}
			}()

			go func() {
				// прогрев до стрима: окна должны быть готовы к первому закрытию
				if err := warmuper.Warmup(streamCtx); err != nil {
					logger.Error("engine: warmup: %v", err)
				}
				state.SetReady(true)

				state.SetStreamConnected(true)
				err := client.StreamKlines(streamCtx, updates)
				state.SetStreamConnected(false)
				close(updates)
				if err != nil {
					// фатальная ошибка подписки — валим процесс
					logger.Error("engine: stream: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			// стоп: перестаём читать стрим, дожимаем очереди, закрываем стор
			cancelStream()

			select {
			case <-demuxDone:
			case <-time.After(drainTimeout):
				logger.Warn("engine: демультиплексор не дожал очередь за %s", drainTimeout)
			}

			drainCtx, cancelDrain := context.WithTimeout(stopCtx, drainTimeout)
			defer cancelDrain()
			if err := agg.Stop(drainCtx); err != nil {
				logger.Warn("engine: drain: %v", err)
			}

			st.Close()
			return nil
		},
	})
}
