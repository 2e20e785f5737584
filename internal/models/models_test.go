package models

import (
	"testing"
	"time"
)

func TestDirectionOpposite(t *testing.T) {
	if DirectionLong.Opposite() != DirectionShort || DirectionShort.Opposite() != DirectionLong {
		t.Fatal("стороны не зеркалятся")
	}
	if DirectionNone.Opposite() != DirectionNone {
		t.Fatal("NONE должен оставаться NONE")
	}
}

func TestValidTimeframe(t *testing.T) {
	for _, tf := range Timeframes {
		if !ValidTimeframe(tf) {
			t.Fatalf("%q должен быть валидным", tf)
		}
	}
	for _, tf := range []string{"7m", "2d", "", "1Mo"} {
		if ValidTimeframe(tf) {
			t.Fatalf("%q не должен быть валидным", tf)
		}
	}
}

func TestTimeframeDuration(t *testing.T) {
	if TimeframeDuration("1h") != time.Hour {
		t.Fatal("1h != 1 час")
	}
	if TimeframeDuration("15m") != 15*time.Minute {
		t.Fatal("15m != 15 минут")
	}
	if TimeframeDuration("nope") != 0 {
		t.Fatal("неизвестный таймфрейм должен давать 0")
	}
}

func TestWindowAccessors(t *testing.T) {
	w := Window{
		{OpenTime: 1, Close: 10, High: 11, Low: 9, Volume: 100},
		{OpenTime: 2, Close: 20, High: 21, Low: 19, Volume: 200},
	}
	if w.Last().OpenTime != 2 {
		t.Fatal("Last должен отдавать хвост")
	}
	if c := w.Closes(); len(c) != 2 || c[0] != 10 || c[1] != 20 {
		t.Fatalf("closes=%v", c)
	}
	if h := w.Highs(); h[1] != 21 {
		t.Fatalf("highs=%v", h)
	}
	if l := w.Lows(); l[0] != 9 {
		t.Fatalf("lows=%v", l)
	}
	if v := w.Volumes(); v[1] != 200 {
		t.Fatalf("volumes=%v", v)
	}
}

func TestRiskRewardRatio(t *testing.T) {
	long := &Signal{Direction: DirectionLong, EntryPrice: 100, StopLoss: 96, TakeProfit1: 106}
	if rr := long.RiskRewardRatio(); rr != 1.5 {
		t.Fatalf("rr=%v, ожидали 1.5", rr)
	}
	short := &Signal{Direction: DirectionShort, EntryPrice: 100, StopLoss: 104, TakeProfit1: 94}
	if rr := short.RiskRewardRatio(); rr != 1.5 {
		t.Fatalf("rr=%v, ожидали 1.5", rr)
	}
	flat := &Signal{EntryPrice: 100, StopLoss: 100, TakeProfit1: 106}
	if rr := flat.RiskRewardRatio(); rr != 0 {
		t.Fatalf("rr=%v, при нулевом риске ожидали 0", rr)
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Symbol: "BTCUSDT", Timeframe: "1h"}
	if k.String() != "BTCUSDT:1h" {
		t.Fatalf("key=%q", k.String())
	}
}
