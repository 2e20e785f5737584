package models

import "time"

// Candle — свеча OHLCV по одному инструменту и таймфрейму.
// После коммита агрегатором (Final=true) больше не мутируется.
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  int64 // ms UTC
	CloseTime int64 // ms UTC

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	QuoteVolume   float64
	TradeCount    int64
	TakerBuyBase  float64
	TakerBuyQuote float64

	// Final=false — промежуточный апдейт текущей свечи из стрима.
	Final bool
}

// Key — ключ стрима (symbol, timeframe).
type Key struct {
	Symbol    string
	Timeframe string
}

func (k Key) String() string { return k.Symbol + ":" + k.Timeframe }

// Window — окно свечей одного ключа, open_time строго по возрастанию.
// Снапшот, который агрегатор отдаёт в колбэки: владелец больше его не трогает.
type Window []Candle

func (w Window) Last() Candle { return w[len(w)-1] }

func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i].Close
	}
	return out
}

func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i].High
	}
	return out
}

func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i].Low
	}
	return out
}

func (w Window) Volumes() []float64 {
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i].Volume
	}
	return out
}

// Timeframes — допустимые таймфреймы бинансовских клайнов.
var Timeframes = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}

var tfDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	// календарный месяц плавает, 30 дней хватает для валидации границ
	"1M": 30 * 24 * time.Hour,
}

func ValidTimeframe(tf string) bool {
	_, ok := tfDurations[tf]
	return ok
}

// TimeframeDuration возвращает длительность таймфрейма, 0 для неизвестного.
func TimeframeDuration(tf string) time.Duration {
	return tfDurations[tf]
}
