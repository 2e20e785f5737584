package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"signal_bot/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []struct {
		key      models.Key
		openTime int64
		winLen   int
		tailOpen int64
	}
}

func (r *recorder) callback(_ context.Context, key models.Key, c models.Candle, w models.Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		key      models.Key
		openTime int64
		winLen   int
		tailOpen int64
	}{key, c.OpenTime, len(w), w.Last().OpenTime})
}

func upd(symbol, tf string, openTime int64, closePx float64, final bool) models.Candle {
	return models.Candle{
		Symbol: symbol, Timeframe: tf,
		OpenTime:  openTime,
		CloseTime: openTime + models.TimeframeDuration(tf).Milliseconds() - 1,
		Open:      closePx, High: closePx + 1, Low: closePx - 1, Close: closePx,
		Volume: 100, Final: final,
	}
}

func runAgg(t *testing.T, cfg Config, feed func(*Aggregator)) *recorder {
	t.Helper()
	rec := &recorder{}
	a := New(cfg)
	a.OnClose(rec.callback)
	ctx := context.Background()
	a.Start(ctx)
	feed(a)
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	return rec
}

const hourMs = int64(3600000)

// прогрев, затем живые апдейты: оба коммита по final-переходу, приход
// нового open_time не коммитит повторно уже закоммиченный хвост
func TestWarmStartThenLive(t *testing.T) {
	T := int64(1700000000000) - 1700000000000%hourMs

	hist := make([]models.Candle, 0, 500)
	for i := 499; i >= 0; i-- {
		hist = append(hist, upd("BNBUSDT", "1h", T-int64(i)*hourMs, 300, true))
	}

	rec := runAgg(t, DefaultConfig(), func(a *Aggregator) {
		a.Preload(models.Key{Symbol: "BNBUSDT", Timeframe: "1h"}, hist)
		ctx := context.Background()
		a.Process(ctx, upd("BNBUSDT", "1h", T, 301, false))
		a.Process(ctx, upd("BNBUSDT", "1h", T, 302, true))
		a.Process(ctx, upd("BNBUSDT", "1h", T+hourMs, 303, false))
		a.Process(ctx, upd("BNBUSDT", "1h", T+hourMs, 304, true))
	})

	if len(rec.events) != 2 {
		t.Fatalf("events=%d, ожидали 2 (T по final и T+1h по final)", len(rec.events))
	}
	if rec.events[0].openTime != T {
		t.Fatalf("первый коммит open_time=%d, ожидали %d", rec.events[0].openTime, T)
	}
	if rec.events[1].openTime != T+hourMs {
		t.Fatalf("второй коммит open_time=%d, ожидали %d", rec.events[1].openTime, T+hourMs)
	}
	// снапшот окна заканчивается закоммиченной свечой
	if rec.events[0].tailOpen != T || rec.events[1].tailOpen != T+hourMs {
		t.Fatalf("хвосты снапшотов: %d, %d", rec.events[0].tailOpen, rec.events[1].tailOpen)
	}
	// прогревочное окно обрезано до WindowSize
	if rec.events[0].winLen > 501 {
		t.Fatalf("winLen=%d, окно не обрезается", rec.events[0].winLen)
	}
}

// ровно один колбэк на (key, open_time), что бы ни прилетало после
func TestExactlyOncePerOpenTime(t *testing.T) {
	rec := runAgg(t, DefaultConfig(), func(a *Aggregator) {
		ctx := context.Background()
		a.Process(ctx, upd("BTCUSDT", "15m", 0, 100, false))
		a.Process(ctx, upd("BTCUSDT", "15m", 0, 101, true))
		a.Process(ctx, upd("BTCUSDT", "15m", 0, 101, true)) // дубль final
		a.Process(ctx, upd("BTCUSDT", "15m", 900000, 102, false))
		a.Process(ctx, upd("BTCUSDT", "15m", 0, 99, true)) // совсем отставший
		a.Process(ctx, upd("BTCUSDT", "15m", 1800000, 103, false))
	})

	var perOpen = map[int64]int{}
	for _, ev := range rec.events {
		perOpen[ev.openTime]++
	}
	if perOpen[0] != 1 {
		t.Fatalf("open_time=0 закоммичен %d раз", perOpen[0])
	}
	// 900000 закрылась приходом 1800000 без final-флага
	if perOpen[900000] != 1 {
		t.Fatalf("open_time=900000 закоммичен %d раз", perOpen[900000])
	}
	if len(rec.events) != 2 {
		t.Fatalf("events=%d, ожидали 2", len(rec.events))
	}
}

// open_time в колбэках строго возрастает по каждому ключу
func TestMonotonicPerKey(t *testing.T) {
	rec := runAgg(t, DefaultConfig(), func(a *Aggregator) {
		ctx := context.Background()
		for i := int64(0); i < 20; i++ {
			a.Process(ctx, upd("ETHUSDT", "1m", i*60000, 100+float64(i), false))
			a.Process(ctx, upd("ETHUSDT", "1m", i*60000, 100+float64(i), true))
		}
	})

	last := int64(-1)
	for _, ev := range rec.events {
		if ev.openTime <= last {
			t.Fatalf("порядок нарушен: %d после %d", ev.openTime, last)
		}
		last = ev.openTime
	}
	if len(rec.events) != 20 {
		t.Fatalf("events=%d, ожидали 20", len(rec.events))
	}
}

// события разных символов не теряются при конкурентной раздаче
func TestMultiSymbolDispatch(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}
	rec := runAgg(t, Config{WindowSize: 100, Workers: 4, QueueSize: 16}, func(a *Aggregator) {
		ctx := context.Background()
		for i := int64(0); i < 10; i++ {
			for _, s := range symbols {
				a.Process(ctx, upd(s, "1m", i*60000, 100, true))
			}
		}
	})

	count := map[models.Key]int{}
	for _, ev := range rec.events {
		count[ev.key]++
	}
	for _, s := range symbols {
		k := models.Key{Symbol: s, Timeframe: "1m"}
		if count[k] != 10 {
			t.Fatalf("%s: %d событий, ожидали 10", s, count[k])
		}
	}
}

// окно не растёт бесконечно
func TestWindowEviction(t *testing.T) {
	cfg := Config{WindowSize: 50, Workers: 1, QueueSize: 512}
	rec := runAgg(t, cfg, func(a *Aggregator) {
		ctx := context.Background()
		for i := int64(0); i < 200; i++ {
			a.Process(ctx, upd("BTCUSDT", "1m", i*60000, 100, true))
		}
	})

	for _, ev := range rec.events {
		if ev.winLen > 51 {
			t.Fatalf("снапшот окна %d свечей при лимите 50", ev.winLen)
		}
	}
	if len(rec.events) != 200 {
		t.Fatalf("events=%d, ожидали 200", len(rec.events))
	}
}

// промежуточные апдейты перезаписывают хвост и не зовут колбэки
func TestIntermediateUpdatesDoNotFire(t *testing.T) {
	a := New(DefaultConfig())
	fired := 0
	a.OnClose(func(context.Context, models.Key, models.Candle, models.Window) { fired++ })
	ctx := context.Background()
	a.Start(ctx)

	for i := 0; i < 5; i++ {
		a.Process(ctx, upd("BTCUSDT", "1m", 0, 100+float64(i), false))
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = a.Stop(stopCtx)

	if fired != 0 {
		t.Fatalf("колбэк звался %d раз на промежуточных апдейтах", fired)
	}

	w := a.Window(models.Key{Symbol: "BTCUSDT", Timeframe: "1m"})
	if len(w) != 1 || w[0].Close != 104 {
		t.Fatalf("хвост должен перезаписываться: %+v", w)
	}
}
