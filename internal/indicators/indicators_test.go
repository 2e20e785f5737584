package indicators

import (
	"math"
	"testing"

	"signal_bot/internal/models"
)

func almost(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestEMA_ConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42.5
	}
	ema := EMA(values, 12)

	for i := 0; i < 11; i++ {
		if !math.IsNaN(ema[i]) {
			t.Fatalf("ema[%d] должен быть NaN до затравки, получили %v", i, ema[i])
		}
	}
	for i := 11; i < len(ema); i++ {
		if !almost(ema[i], 42.5, 1e-9) {
			t.Fatalf("ema[%d]=%v, ожидали 42.5", i, ema[i])
		}
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	ema := EMA([]float64{1, 2, 3}, 10)
	for i, v := range ema {
		if !math.IsNaN(v) {
			t.Fatalf("ema[%d]=%v, ожидали NaN", i, v)
		}
	}
}

func TestRSI_AllGains(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := RSI(closes, 14)
	if !almost(rsi, 100, 1e-9) {
		t.Fatalf("rsi=%v, при монотонном росте ожидали 100", rsi)
	}
}

func TestRSI_AllLosses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	rsi := RSI(closes, 14)
	if !almost(rsi, 0, 1e-9) {
		t.Fatalf("rsi=%v, при монотонном падении ожидали 0", rsi)
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	if !math.IsNaN(RSI([]float64{1, 2, 3}, 14)) {
		t.Fatal("ожидали NaN при нехватке данных")
	}
}

func TestMACD_CrossoverSign(t *testing.T) {
	// равномерное падение, затем резкий разворот вверх: на падении MACD
	// постоянен и гистограмма нулевая, после разворота — положительная
	closes := make([]float64, 0, 120)
	px := 200.0
	for i := 0; i < 80; i++ {
		px -= 0.5
		closes = append(closes, px)
	}
	for i := 0; i < 40; i++ {
		px += 2.0
		closes = append(closes, px)
	}

	_, _, hist := MACD(closes, 12, 26, 9)

	if math.IsNaN(hist[len(hist)-1]) {
		t.Fatal("гистограмма не должна быть NaN на хвосте")
	}
	if hist[len(hist)-1] <= 0 {
		t.Fatalf("hist=%v, после разворота вверх ожидали > 0", hist[len(hist)-1])
	}

	// у линейной серии EMA отстаёт на постоянную величину, поэтому
	// MACD = const, сигнальная линия совпадает с ним и гистограмма = 0
	for i, h := range hist[26+9-2 : 80] {
		if math.IsNaN(h) || !almost(h, 0, 1e-9) {
			t.Fatalf("hist[%d]=%v, на участке равномерного падения ожидали 0", 26+9-2+i, h)
		}
	}
}

func TestMACD_InsufficientData(t *testing.T) {
	macd, signal, hist := MACD(make([]float64, 20), 12, 26, 9)
	for i := range macd {
		if !math.IsNaN(macd[i]) || !math.IsNaN(signal[i]) || !math.IsNaN(hist[i]) {
			t.Fatalf("индекс %d: ожидали NaN во всех сериях", i)
		}
	}
}

func flatWindow(n int, px float64) models.Window {
	w := make(models.Window, n)
	for i := range w {
		w[i] = models.Candle{Open: px, High: px, Low: px, Close: px, Volume: 1}
	}
	return w
}

func TestATR_FlatWindow(t *testing.T) {
	atr := ATR(flatWindow(50, 100), 14)
	if !almost(atr, 0, 1e-12) {
		t.Fatalf("atr=%v, у плоского окна ожидали 0", atr)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	w := make(models.Window, 50)
	for i := range w {
		w[i] = models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	}
	atr := ATR(w, 14)
	if !almost(atr, 2, 1e-9) {
		t.Fatalf("atr=%v, ожидали 2 (high-low)", atr)
	}
}

func TestATR_InsufficientData(t *testing.T) {
	if !math.IsNaN(ATR(flatWindow(10, 100), 14)) {
		t.Fatal("ожидали NaN при нехватке данных")
	}
}

func TestSMA(t *testing.T) {
	if got := SMA([]float64{1, 2, 3, 4}, 2); !almost(got, 3.5, 1e-12) {
		t.Fatalf("sma=%v, ожидали 3.5", got)
	}
	if !math.IsNaN(SMA([]float64{1}, 2)) {
		t.Fatal("ожидали NaN при нехватке данных")
	}
}

// Два вызова на одинаковом входе обязаны давать одинаковый результат.
func TestDeterminism(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/3)*5
	}
	if RSI(closes, 14) != RSI(closes, 14) {
		t.Fatal("RSI недетерминирован")
	}
	_, _, h1 := MACD(closes, 12, 26, 9)
	_, _, h2 := MACD(closes, 12, 26, 9)
	if h1[len(h1)-1] != h2[len(h2)-1] {
		t.Fatal("MACD недетерминирован")
	}
}
