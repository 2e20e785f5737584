package analyzers

import "signal_bot/internal/models"

// flatCandles — n одинаковых свечей с заданным диапазоном и объёмом.
func flatCandles(n int, high, low, closePx, vol float64) models.Window {
	w := make(models.Window, n)
	for i := range w {
		w[i] = models.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  int64(i) * 3600000,
			CloseTime: int64(i)*3600000 + 3599999,
			Open:      closePx,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    vol,
			Final:     true,
		}
	}
	return w
}

// pricePath — кусочно-линейный путь закрытий по опорным точкам.
// high/low = close ± 0.1, чтобы пивоты совпадали с опорными экстремумами.
func pricePath(anchors []float64, steps []int) models.Window {
	var w models.Window
	t := int64(0)
	push := func(px float64) {
		w = append(w, models.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  t * 3600000,
			CloseTime: t*3600000 + 3599999,
			Open:      px,
			High:      px + 0.1,
			Low:       px - 0.1,
			Close:     px,
			Volume:    100,
			Final:     true,
		})
		t++
	}

	push(anchors[0])
	for s := 0; s < len(steps); s++ {
		from, to := anchors[s], anchors[s+1]
		n := steps[s]
		for i := 1; i <= n; i++ {
			push(from + (to-from)*float64(i)/float64(n))
		}
	}
	return w
}

func key() models.Key { return models.Key{Symbol: "BTCUSDT", Timeframe: "1h"} }
