package service

import (
	"context"
	"sync"

	"signal_bot/internal/aggregator"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	market "signal_bot/internal/modules/market/service"
	"signal_bot/internal/store"
	"signal_bot/pkg/logger"
)

type Warmuper struct {
	mx    *market.Client
	agg   *aggregator.Aggregator
	store *store.Store
	n     market.ServiceNotifier
	m     *metrics.Metrics

	cfg *config.Config

	// ограничитель параллелизма, чтобы не словить rate limit истории
	sem chan struct{}
}

func NewWarmuper(
	mx *market.Client,
	agg *aggregator.Aggregator,
	st *store.Store,
	n market.ServiceNotifier,
	m *metrics.Metrics,
	cfg *config.Config,
) *Warmuper {
	return &Warmuper{
		mx:    mx,
		agg:   agg,
		store: st,
		n:     n,
		m:     m,
		cfg:   cfg,
		sem:   make(chan struct{}, 8), // 8 параллельных ключей
	}
}

// Warmup заливает startup_candles истории в окно каждого ключа до
// подключения стрима и бэкапит её в стор. Ошибка одного ключа не
// мешает остальным: его окно доберёт стрим.
func (w *Warmuper) Warmup(ctx context.Context) error {
	need := w.cfg.StartupCandles
	keys := make([]models.Key, 0, len(w.cfg.Symbols)*len(w.cfg.Timeframes))
	for _, s := range w.cfg.Symbols {
		for _, tf := range w.cfg.Timeframes {
			keys = append(keys, models.Key{Symbol: s, Timeframe: tf})
		}
	}

	if w.n != nil {
		w.n.SendService(ctx, "🔥 REST-прогрев: ключей=%d, по %d свечей", len(keys), need)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		loaded   int
	)

	for _, key := range keys {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			candles, err := w.mx.GetKlines(ctx, key.Symbol, key.Timeframe, need)
			if err != nil {
				logger.Error("warmup: %s: %v", key, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			w.agg.Preload(key, candles)
			if w.m != nil {
				w.m.WarmupCandles.Add(float64(len(candles)))
			}
			mu.Lock()
			loaded += len(candles)
			mu.Unlock()

			if err := w.store.BulkUpsertCandles(ctx, candles); err != nil {
				logger.Error("warmup: persist %s: %v", key, err)
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		if w.n != nil {
			w.n.SendService(ctx, "⚠️ Прогрев закончился с ошибкой: %v", firstErr)
		}
		return firstErr
	}

	if w.n != nil {
		w.n.SendService(ctx, "✅ Прогрев закончен: %d свечей. Подключаем стрим.", loaded)
	}
	return nil
}
