// Package fuser склеивает вердикты анализаторов в торговый сигнал:
// многоярусное правило согласия, кулдауны, защита от противоречий,
// уровни SL/TP по ATR. Единственный выход с мутацией состояния — эмит.
package fuser

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"signal_bot/internal/analyzers"
	"signal_bot/internal/indicators"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

// Причины реджектов — уходят в счётчики, наружу не показываются.
const (
	RejectCooldown      = "cooldown"
	RejectConflict      = "conflict"
	RejectLowConfidence = "low-confidence"
	RejectNoAgreement   = "no-agreement"
	RejectContradiction = "contradiction"
	RejectDegenerate    = "degenerate-levels"
	RejectShortWindow   = "short-window"
)

type Config struct {
	MinCandles    int
	MinConfidence float64

	Cooldown         time.Duration
	PreventConflicts bool
	ConflictWindow   time.Duration

	ATRPeriod int
	ATRSLMult float64
	ATRTPMult float64

	// соло-пороги ярусов 3.5 и 4
	RSISoloConf     float64
	MACDSoloConf    float64
	PatternSoloConf float64

	EnableWyckoff bool
	EnableElliott bool
	EnableRSI     bool
	EnableMACD    bool
}

func DefaultConfig() Config {
	return Config{
		MinCandles:       100,
		MinConfidence:    0.55,
		Cooldown:         5 * time.Minute,
		PreventConflicts: true,
		ConflictWindow:   time.Hour,
		ATRPeriod:        14,
		ATRSLMult:        2.0,
		ATRTPMult:        3.0,
		RSISoloConf:      0.80,
		MACDSoloConf:     0.75,
		PatternSoloConf:  0.75,
		EnableWyckoff:    true,
		EnableElliott:    true,
		EnableRSI:        true,
		EnableMACD:       true,
	}
}

// Store — то, что фьюзеру нужно от стора.
type Store interface {
	InsertSignal(ctx context.Context, sig *models.Signal) (int64, error)
}

// Notifier публикует эмитнутый сигнал; таймауты и формат — его забота.
type Notifier interface {
	PublishSignal(ctx context.Context, sig *models.Signal)
}

// Counters — внутренние метрики эмитов/реджектов.
type Counters interface {
	SignalEmitted(sig *models.Signal)
	SignalRejected(key models.Key, reason string)
}

type nopCounters struct{}

func (nopCounters) SignalEmitted(*models.Signal)      {}
func (nopCounters) SignalRejected(models.Key, string) {}

// DirectionStamp — последний эмит по символу (для защиты от противоречий).
type DirectionStamp struct {
	Direction models.Direction `json:"direction"`
	At        time.Time        `json:"at"`
}

// Fuser владеет своим состоянием единолично: пишут только колбэки
// закрытия (сериализованные по символу), читатели берут снапшот.
type Fuser struct {
	cfg Config

	wyckoff analyzers.Analyzer
	elliott analyzers.Analyzer
	rsi     analyzers.Analyzer
	macd    analyzers.Analyzer

	store    Store
	notifier Notifier
	counters Counters

	now func() time.Time

	mu            sync.Mutex
	lastSignalAt  map[models.Key]time.Time
	lastDirection map[string]DirectionStamp
	emitted       int64
	rejects       map[string]int64
}

type Option func(*Fuser)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(f *Fuser) { f.now = now }
}

func WithCounters(c Counters) Option {
	return func(f *Fuser) { f.counters = c }
}

// WithAnalyzers подменяет набор анализаторов (для тестов и бэктестов).
func WithAnalyzers(w, e, r, m analyzers.Analyzer) Option {
	return func(f *Fuser) {
		f.wyckoff, f.elliott, f.rsi, f.macd = w, e, r, m
	}
}

func New(cfg Config, store Store, notifier Notifier, opts ...Option) *Fuser {
	f := &Fuser{
		cfg:           cfg,
		store:         store,
		notifier:      notifier,
		counters:      nopCounters{},
		now:           time.Now,
		lastSignalAt:  make(map[models.Key]time.Time),
		lastDirection: make(map[string]DirectionStamp),
		rejects:       make(map[string]int64),
	}
	if cfg.EnableWyckoff {
		f.wyckoff = analyzers.NewWyckoff(analyzers.DefaultWyckoffConfig())
	}
	if cfg.EnableElliott {
		f.elliott = analyzers.NewElliott(analyzers.DefaultElliottConfig())
	}
	if cfg.EnableRSI {
		f.rsi = analyzers.NewRSI(analyzers.DefaultRSIConfig())
	}
	if cfg.EnableMACD {
		f.macd = analyzers.NewMACD(analyzers.DefaultMACDConfig())
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// OnCandleClose — колбэк агрегатора: IDLE → ANALYZING → REJECT|EMIT.
func (f *Fuser) OnCandleClose(ctx context.Context, key models.Key, candle models.Candle, window models.Window) {
	if len(window) < f.cfg.MinCandles {
		f.reject(key, RejectShortWindow)
		return
	}

	now := f.now()

	// кулдаун по ключу проверяем до анализа: незачем гонять анализаторы
	if !f.cooldownPassed(key, now) {
		f.reject(key, RejectCooldown)
		return
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "fuser.candle_close")
	span.SetTag("symbol", key.Symbol)
	span.SetTag("timeframe", key.Timeframe)
	defer span.Finish()

	res := f.runAnalyzers(window, key)

	dir, tier, conf, reason, ok := fuse(res, f.cfg)
	if !ok {
		f.reject(key, reason)
		return
	}

	if conf < f.cfg.MinConfidence {
		logger.Debug("fuser: %s %s conf %.3f < %.3f", key.Symbol, key.Timeframe, conf, f.cfg.MinConfidence)
		f.reject(key, RejectLowConfidence)
		return
	}

	if f.cfg.PreventConflicts {
		if stamp, blocked := f.conflicting(key.Symbol, dir, now); blocked {
			logger.Info("fuser: %s %s %s заблокирован противоположным %s (%s назад)",
				key.Symbol, key.Timeframe, dir, stamp.Direction, now.Sub(stamp.At).Truncate(time.Second))
			f.reject(key, RejectConflict)
			return
		}
	}

	sig, ok := f.buildSignal(key, candle, window, dir, tier, conf, reason, res, now)
	if !ok {
		f.reject(key, RejectDegenerate)
		return
	}

	f.emitSignal(ctx, key, sig, now)
}

type results struct {
	wyckoff models.AnalyzerResult
	elliott models.AnalyzerResult
	rsi     models.AnalyzerResult
	macd    models.AnalyzerResult
}

// runAnalyzers гоняет все анализаторы по снапшоту окна. Паника одного
// анализатора гасится и считается за NONE, остальные не страдают.
func (f *Fuser) runAnalyzers(window models.Window, key models.Key) results {
	run := func(a analyzers.Analyzer) (res models.AnalyzerResult) {
		if a == nil {
			return models.AnalyzerResult{}
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("fuser: %s паника на %s: %v", a.Name(), key, r)
				res = models.AnalyzerResult{}
			}
		}()
		return a.Analyze(window, key)
	}

	return results{
		wyckoff: run(f.wyckoff),
		elliott: run(f.elliott),
		rsi:     run(f.rsi),
		macd:    run(f.macd),
	}
}

// fuse — ярусное правило, выигрывает первый подходящий ярус.
// Ярус бракуется, если «необязательный» для него анализатор дал
// противоположную сторону.
func fuse(r results, cfg Config) (dir models.Direction, tier float64, conf float64, reason string, ok bool) {
	w, e, rs, m := r.wyckoff, r.elliott, r.rsi, r.macd
	present := func(x models.AnalyzerResult) bool { return x.Signal != models.DirectionNone }
	alone := func(x models.AnalyzerResult, others ...models.AnalyzerResult) bool {
		if !present(x) {
			return false
		}
		for _, o := range others {
			if present(o) {
				return false
			}
		}
		return true
	}
	opposes := func(x models.AnalyzerResult, d models.Direction) bool {
		return present(x) && x.Signal != d
	}

	// ярус 1: согласие паттерн-анализаторов
	if present(w) && present(e) && w.Signal == e.Signal {
		dir = w.Signal
		conf = (w.Confidence + e.Confidence) / 2
		var agreeing []string
		if rs.Signal == dir {
			conf += 0.05
			agreeing = append(agreeing, "RSI")
		}
		if m.Signal == dir {
			conf += 0.05
			agreeing = append(agreeing, "MACD")
		}
		if opposes(rs, dir) || opposes(m, dir) {
			return "", 0, 0, RejectContradiction, false
		}
		conf = math.Min(conf, 0.95)
		reason = "Wyckoff+Elliott согласны: " + string(dir)
		if len(agreeing) > 0 {
			reason += " (+" + strings.Join(agreeing, ", ") + ")"
		}
		return dir, 1, conf, reason, true
	}

	// ярус 2: один паттерн + оба индикатора
	if present(w) || present(e) {
		pattern, name := w, "Wyckoff"
		if !present(w) {
			pattern, name = e, "Elliott"
		}
		if present(rs) && present(m) && rs.Signal == pattern.Signal && m.Signal == pattern.Signal {
			dir = pattern.Signal
			other := e
			if !present(w) {
				other = w
			}
			if opposes(other, dir) {
				return "", 0, 0, RejectContradiction, false
			}
			conf = (pattern.Confidence + rs.Confidence + m.Confidence) / 3
			return dir, 2, conf, fmt.Sprintf("%s+RSI+MACD согласны: %s", name, dir), true
		}
	}

	// ярус 3: только индикаторы, паттернов нет
	if present(rs) && present(m) && rs.Signal == m.Signal && !present(w) && !present(e) {
		dir = rs.Signal
		conf = (rs.Confidence + m.Confidence) / 2
		return dir, 3, conf, "RSI+MACD согласны: " + string(dir), true
	}

	// ярус 3.5: сильный одиночный индикатор
	if alone(rs, w, e, m) && rs.Confidence >= cfg.RSISoloConf {
		return rs.Signal, 3.5, rs.Confidence * 0.85, fmt.Sprintf("сильный RSI %s соло (%.0f%%)", rs.Signal, rs.Confidence*100), true
	}
	if alone(m, w, e, rs) && m.Confidence >= cfg.MACDSoloConf {
		return m.Signal, 3.5, m.Confidence * 0.85, fmt.Sprintf("сильный MACD %s соло (%.0f%%)", m.Signal, m.Confidence*100), true
	}

	// ярус 4: сильный одиночный паттерн
	if alone(w, e, rs, m) && w.Confidence >= cfg.PatternSoloConf {
		return w.Signal, 4, w.Confidence * 0.90, fmt.Sprintf("сильный Wyckoff %s соло (%.0f%%)", w.Signal, w.Confidence*100), true
	}
	if alone(e, w, rs, m) && e.Confidence >= cfg.PatternSoloConf {
		return e.Signal, 4, e.Confidence * 0.90, fmt.Sprintf("сильный Elliott %s соло (%.0f%%)", e.Signal, e.Confidence*100), true
	}

	return "", 0, 0, RejectNoAgreement, false
}

// buildSignal считает уровни по ATR. Плоское окно (ATR≈0) — брак.
func (f *Fuser) buildSignal(
	key models.Key,
	candle models.Candle,
	window models.Window,
	dir models.Direction,
	tier, conf float64,
	reason string,
	res results,
	now time.Time,
) (*models.Signal, bool) {
	atr := indicators.ATR(window, f.cfg.ATRPeriod)
	if math.IsNaN(atr) || atr <= 0 {
		return nil, false
	}

	entry := candle.Close
	slDist := f.cfg.ATRSLMult * atr
	tpDist := f.cfg.ATRTPMult * atr

	sig := &models.Signal{
		Symbol:       key.Symbol,
		Timeframe:    key.Timeframe,
		Direction:    dir,
		EntryPrice:   entry,
		Confidence:   conf,
		FusionTier:   tier,
		FusionReason: reason,
		ATR:          atr,
		Wyckoff:      res.wyckoff,
		Elliott:      res.elliott,
		RSI:          res.rsi,
		MACD:         res.macd,
		GeneratedAt:  now,
	}

	if dir == models.DirectionLong {
		sig.StopLoss = entry - slDist
		sig.TakeProfit1 = entry + tpDist
		sig.TakeProfit2 = entry + 2*tpDist
		sig.TakeProfit3 = entry + 3*tpDist
		if entry-sig.StopLoss <= 0 {
			return nil, false
		}
	} else {
		sig.StopLoss = entry + slDist
		sig.TakeProfit1 = entry - tpDist
		sig.TakeProfit2 = entry - 2*tpDist
		sig.TakeProfit3 = entry - 3*tpDist
		if sig.StopLoss-entry <= 0 {
			return nil, false
		}
	}
	sig.RiskReward = sig.RiskRewardRatio()

	return sig, true
}

// emitSignal — единственная точка, где мутируются штампы состояния.
func (f *Fuser) emitSignal(ctx context.Context, key models.Key, sig *models.Signal, now time.Time) {
	if f.store != nil {
		id, err := f.store.InsertSignal(ctx, sig)
		if err != nil {
			logger.Error("fuser: insert signal %s %s: %v", key.Symbol, key.Timeframe, err)
		} else {
			sig.ID = id
		}
	}

	f.mu.Lock()
	f.lastSignalAt[key] = now
	f.lastDirection[key.Symbol] = DirectionStamp{Direction: sig.Direction, At: now}
	f.emitted++
	f.mu.Unlock()

	f.counters.SignalEmitted(sig)

	logger.Info("fuser: ✅ %s %s %s entry=%.6f sl=%.6f tp=%.6f conf=%.1f%% tier=%v",
		sig.Direction, sig.Symbol, sig.Timeframe, sig.EntryPrice, sig.StopLoss, sig.TakeProfit1, sig.Confidence*100, sig.FusionTier)

	if f.notifier != nil {
		f.notifier.PublishSignal(ctx, sig)
	}
}

func (f *Fuser) cooldownPassed(key models.Key, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.lastSignalAt[key]
	return !ok || now.Sub(last) >= f.cfg.Cooldown
}

func (f *Fuser) conflicting(symbol string, dir models.Direction, now time.Time) (DirectionStamp, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stamp, ok := f.lastDirection[symbol]
	if !ok || stamp.Direction == dir {
		return stamp, false
	}
	return stamp, now.Sub(stamp.At) < f.cfg.ConflictWindow
}

func (f *Fuser) reject(key models.Key, reason string) {
	f.mu.Lock()
	f.rejects[reason]++
	f.mu.Unlock()
	f.counters.SignalRejected(key, reason)
}

// Stats — снапшот состояния для статусной выдачи.
type Stats struct {
	Emitted         int64                     `json:"emitted"`
	Rejects         map[string]int64          `json:"rejects"`
	ActiveCooldowns int                       `json:"active_cooldowns"`
	LastDirections  map[string]DirectionStamp `json:"last_directions"`
}

func (f *Fuser) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		Emitted:         f.emitted,
		Rejects:         make(map[string]int64, len(f.rejects)),
		ActiveCooldowns: 0,
		LastDirections:  make(map[string]DirectionStamp, len(f.lastDirection)),
	}
	now := f.now()
	for k, v := range f.rejects {
		s.Rejects[k] = v
	}
	for _, at := range f.lastSignalAt {
		if now.Sub(at) < f.cfg.Cooldown {
			s.ActiveCooldowns++
		}
	}
	for sym, stamp := range f.lastDirection {
		s.LastDirections[sym] = stamp
	}
	return s
}
