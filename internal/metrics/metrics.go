// Package metrics — внутренние счётчики конвейера. Причины реджектов
// наружу пользователям не показываются, живут только здесь.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"signal_bot/internal/models"
)

type Metrics struct {
	registry *prometheus.Registry

	CandlesCommitted prometheus.Counter
	CandlesPersisted prometheus.Counter
	DuplicateCandles prometheus.Counter
	WarmupCandles    prometheus.Counter

	SignalsEmitted  *prometheus.CounterVec // symbol, timeframe, direction
	SignalsRejected *prometheus.CounterVec // reason
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CandlesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_candles_committed_total",
			Help: "Closed candles committed by the aggregator",
		}),
		CandlesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_candles_persisted_total",
			Help: "Closed candles written to the store",
		}),
		DuplicateCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_candles_duplicate_total",
			Help: "Candle upserts rejected as duplicates (treated as success)",
		}),
		WarmupCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_warmup_candles_total",
			Help: "Candles preloaded from history at startup",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_emitted_total",
			Help: "Emitted signals",
		}, []string{"symbol", "timeframe", "direction"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_rejected_total",
			Help: "Rejected signal candidates by reason",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.CandlesCommitted,
		m.CandlesPersisted,
		m.DuplicateCandles,
		m.WarmupCandles,
		m.SignalsEmitted,
		m.SignalsRejected,
	)
	return m
}

// Registry — для promhttp в админке.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SignalEmitted / SignalRejected реализуют fuser.Counters.

func (m *Metrics) SignalEmitted(sig *models.Signal) {
	m.SignalsEmitted.WithLabelValues(sig.Symbol, sig.Timeframe, string(sig.Direction)).Inc()
}

func (m *Metrics) SignalRejected(_ models.Key, reason string) {
	m.SignalsRejected.WithLabelValues(reason).Inc()
}
