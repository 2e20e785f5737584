// Package indicators — чистые функции над срезами закрытых свечей.
// При нехватке данных возвращаем NaN, вызывающий обязан проверять.
package indicators

import (
	"math"

	"signal_bot/internal/models"
)

// SMA — простая средняя последних period значений, NaN если данных мало.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA возвращает серию EMA той же длины, что вход.
// Затравка — SMA первых period значений, до неё NaN.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI — текущее значение RSI по Уайлдеру.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD возвращает серии линии MACD, сигнальной линии и гистограммы,
// выровненные по входу (NaN там, где серия ещё не определена).
func MACD(closes []float64, fast, slow, signalPeriod int) (macd, signal, hist []float64) {
	n := len(closes)
	macd = make([]float64, n)
	signal = make([]float64, n)
	hist = make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i], signal[i], hist[i] = math.NaN(), math.NaN(), math.NaN()
	}
	if n < slow+signalPeriod {
		return macd, signal, hist
	}

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	sig := EMA(macd[slow-1:], signalPeriod)
	for j, v := range sig {
		signal[slow-1+j] = v
	}
	for i := 0; i < n; i++ {
		hist[i] = macd[i] - signal[i]
	}
	return macd, signal, hist
}

// ATR — текущий Average True Range по Уайлдеру.
func ATR(w models.Window, period int) float64 {
	if period <= 0 || len(w) < period+1 {
		return math.NaN()
	}

	tr := func(i int) float64 {
		hl := w[i].High - w[i].Low
		hc := math.Abs(w[i].High - w[i-1].Close)
		lc := math.Abs(w[i].Low - w[i-1].Close)
		return math.Max(hl, math.Max(hc, lc))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr(i)
	}
	atr /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(w); i++ {
		atr = (atr*(p-1) + tr(i)) / p
	}
	return atr
}
