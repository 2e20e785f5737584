package analyzers

import (
	"math"
	"testing"

	"signal_bot/internal/models"
)

func trendCandles(n int, start, step float64) models.Window {
	w := make(models.Window, n)
	px := start
	for i := range w {
		w[i] = models.Candle{
			OpenTime: int64(i) * 3600000,
			Open:     px, High: px + 0.5, Low: px - 0.5, Close: px,
			Volume: 100, Final: true,
		}
		px += step
	}
	return w
}

func TestRSI_Oversold_Long(t *testing.T) {
	res := NewRSI(DefaultRSIConfig()).Analyze(trendCandles(60, 200, -1), key())
	if res.Signal != models.DirectionLong {
		t.Fatalf("signal=%q, при RSI≈0 ожидали LONG", res.Signal)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("confidence=%v, при RSI≈0 ожидали клэмп 1.0", res.Confidence)
	}
}

func TestRSI_Overbought_Short(t *testing.T) {
	res := NewRSI(DefaultRSIConfig()).Analyze(trendCandles(60, 100, 1), key())
	if res.Signal != models.DirectionShort {
		t.Fatalf("signal=%q, при RSI≈100 ожидали SHORT", res.Signal)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("confidence=%v", res.Confidence)
	}
}

func TestRSI_Neutral_None(t *testing.T) {
	// чередование +1/-1: средние gain и loss равны, RSI около 50
	w := make(models.Window, 60)
	px := 100.0
	for i := range w {
		if i%2 == 0 {
			px += 1
		} else {
			px -= 1
		}
		w[i] = models.Candle{OpenTime: int64(i) * 3600000, Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 100, Final: true}
	}
	res := NewRSI(DefaultRSIConfig()).Analyze(w, key())
	if res.Signal != models.DirectionNone {
		t.Fatalf("signal=%q rsi=%v, ожидали NONE", res.Signal, res.Detail["rsi"])
	}
	if rsi, ok := res.Detail["rsi"].(float64); !ok || math.Abs(rsi-50) > 10 {
		t.Fatalf("rsi=%v, ожидали около 50", res.Detail["rsi"])
	}
}

func TestRSI_ConfidenceFormula(t *testing.T) {
	// подбираем окно с RSI в зоне перепроданности, но не на нуле
	w := trendCandles(40, 120, -0.4)
	// пара откатов вверх, чтобы RSI оторвался от нуля
	for i := 20; i < 40; i += 5 {
		w[i].Close += 1.5
	}
	res := NewRSI(DefaultRSIConfig()).Analyze(w, key())
	if res.Signal != models.DirectionLong {
		t.Skipf("окно не дало перепроданность: %+v", res.Detail)
	}
	rsi := res.Detail["rsi"].(float64)
	want := 0.5 + (30-rsi)/30
	if want > 1 {
		want = 1
	}
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("confidence=%v, по формуле ожидали %v (rsi=%v)", res.Confidence, want, rsi)
	}
}

func TestRSI_TooFewCandles(t *testing.T) {
	res := NewRSI(DefaultRSIConfig()).Analyze(trendCandles(10, 100, -1), key())
	if res.Signal != models.DirectionNone {
		t.Fatalf("signal=%q, на коротком окне ожидали NONE", res.Signal)
	}
}
