// Package aggregator ведёт окна свечей по ключам (symbol, timeframe),
// детектит закрытие свечи и раздаёт события закрытия в колбэки.
package aggregator

import (
	"context"
	"sync"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

// CloseCallback вызывается ровно один раз на каждую закрытую свечу ключа.
// window — снапшот, колбэк может читать его без синхронизации.
type CloseCallback func(ctx context.Context, key models.Key, candle models.Candle, window models.Window)

type Config struct {
	WindowSize int // максимум закрытых свечей в окне
	Workers    int // шарды диспетчера колбэков
	QueueSize  int // буфер очереди каждого шарда
}

func DefaultConfig() Config {
	return Config{WindowSize: 500, Workers: 8, QueueSize: 256}
}

type state struct {
	// окно вместе с текущей (ещё не закрытой) свечой в хвосте
	window []models.Candle
	// open_time последней закоммиченной свечи (-1, пока коммитов не было);
	// защита от повторного коммита
	lastCommitted int64
}

type Aggregator struct {
	cfg Config

	mu     sync.Mutex
	states map[models.Key]*state

	cbMu      sync.RWMutex
	callbacks []CloseCallback

	dispatch *dispatcher
}

func New(cfg Config) *Aggregator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Aggregator{
		cfg:      cfg,
		states:   make(map[models.Key]*state),
		dispatch: newDispatcher(cfg.Workers, cfg.QueueSize),
	}
}

// OnClose регистрирует колбэк закрытия. Регистрировать до Start.
func (a *Aggregator) OnClose(cb CloseCallback) {
	a.cbMu.Lock()
	a.callbacks = append(a.callbacks, cb)
	a.cbMu.Unlock()
}

// Start поднимает воркеры диспетчера.
func (a *Aggregator) Start(ctx context.Context) {
	a.dispatch.start(ctx, a.runCallbacks)
}

// Stop перестаёт принимать события и ждёт дренаж очередей не дольше ctx.
func (a *Aggregator) Stop(ctx context.Context) error {
	return a.dispatch.stop(ctx)
}

// Preload заливает прогревочную историю в окно ключа. Колбэки не зовутся:
// анализ только по живым закрытиям. Хвост остаётся «незакоммиченным» —
// стрим может его дозакрыть (или перезаписать) и коммит случится один раз.
func (a *Aggregator) Preload(key models.Key, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.stateFor(key)
	if len(st.window) > 0 {
		return // уже что-то есть, повторный прогрев не затираем
	}
	if len(candles) > a.cfg.WindowSize {
		candles = candles[len(candles)-a.cfg.WindowSize:]
	}
	st.window = append(st.window, candles...)
	if len(candles) >= 2 {
		st.lastCommitted = candles[len(candles)-2].OpenTime
	}
}

// Process принимает апдейт клайна из стрима (или прогрева) и решает,
// закрылась ли свеча. Вызывается из одной горутины на ключ.
func (a *Aggregator) Process(ctx context.Context, upd models.Candle) {
	key := models.Key{Symbol: upd.Symbol, Timeframe: upd.Timeframe}

	a.mu.Lock()
	st := a.stateFor(key)

	var events []event

	if n := len(st.window); n > 0 {
		tail := &st.window[n-1]

		switch {
		case upd.OpenTime < tail.OpenTime:
			// отставший апдейт старее хвоста — дропаем
			a.mu.Unlock()
			logger.Info("agg: drop stale update %s open_time=%d tail=%d", key, upd.OpenTime, tail.OpenTime)
			return

		case upd.OpenTime == tail.OpenTime:
			wasFinal := tail.Final
			*tail = upd
			if upd.Final && !wasFinal && tail.OpenTime > st.lastCommitted {
				events = append(events, a.commitLocked(key, st, n-1))
			}
			a.mu.Unlock()
			a.emit(ctx, events)
			return

		default: // upd.OpenTime > tail.OpenTime
			// новее хвоста: хвост закрылся (даже если is_final мы не видели)
			if tail.OpenTime > st.lastCommitted {
				tail.Final = true
				events = append(events, a.commitLocked(key, st, n-1))
			}
		}
	}

	st.window = append(st.window, upd)
	a.trimLocked(st)
	if upd.Final && upd.OpenTime > st.lastCommitted {
		events = append(events, a.commitLocked(key, st, len(st.window)-1))
	}
	a.mu.Unlock()
	a.emit(ctx, events)
}

// Window отдаёт копию окна ключа (для статуса и отладки).
func (a *Aggregator) Window(key models.Key) models.Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[key]
	if !ok {
		return nil
	}
	out := make(models.Window, len(st.window))
	copy(out, st.window)
	return out
}

// StreamStat — срез по одному ключу для статусной выдачи.
type StreamStat struct {
	Key        models.Key `json:"key"`
	Candles    int        `json:"candles"`
	LatestOpen int64      `json:"latest_open"`
}

func (a *Aggregator) Stats() []StreamStat {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StreamStat, 0, len(a.states))
	for key, st := range a.states {
		s := StreamStat{Key: key, Candles: len(st.window)}
		if len(st.window) > 0 {
			s.LatestOpen = st.window[len(st.window)-1].OpenTime
		}
		out = append(out, s)
	}
	return out
}

func (a *Aggregator) stateFor(key models.Key) *state {
	st, ok := a.states[key]
	if !ok {
		st = &state{lastCommitted: -1}
		a.states[key] = st
	}
	return st
}

// commitLocked фиксирует свечу idx как закрытую и готовит событие
// со снапшотом окна по неё включительно. Вызывать под a.mu.
func (a *Aggregator) commitLocked(key models.Key, st *state, idx int) event {
	c := st.window[idx]
	st.lastCommitted = c.OpenTime

	snapshot := make(models.Window, idx+1)
	copy(snapshot, st.window[:idx+1])

	return event{key: key, candle: c, window: snapshot}
}

func (a *Aggregator) trimLocked(st *state) {
	// закрытые свечи держим в пределах WindowSize, плюс текущий хвост
	if limit := a.cfg.WindowSize + 1; len(st.window) > limit {
		st.window = append(st.window[:0], st.window[len(st.window)-limit:]...)
	}
}

func (a *Aggregator) emit(ctx context.Context, events []event) {
	for _, ev := range events {
		a.dispatch.submit(ctx, ev)
	}
}

func (a *Aggregator) runCallbacks(ctx context.Context, ev event) {
	a.cbMu.RLock()
	cbs := a.callbacks
	a.cbMu.RUnlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("agg: panic в колбэке %s open_time=%d: %v", ev.key, ev.candle.OpenTime, r)
				}
			}()
			cb(ctx, ev.key, ev.candle, ev.window)
		}()
	}
}
