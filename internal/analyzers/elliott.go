package analyzers

import (
	"fmt"
	"math"

	"signal_bot/internal/models"
)

type pivotKind string

const (
	pivotHigh pivotKind = "high"
	pivotLow  pivotKind = "low"
)

type pivot struct {
	kind  pivotKind
	price float64
	index int
	time  int64
}

type ElliottConfig struct {
	MinCandles  int
	PivotWindow int // полуширина окна экстремума
	MinPivots   int
}

func DefaultElliottConfig() ElliottConfig {
	return ElliottConfig{
		MinCandles:  100,
		PivotWindow: 5,
		MinPivots:   5,
	}
}

// Elliott — упрощённый волновой счёт: пять волн импульса по шести
// чередующимся пивотам, либо трёхволновая коррекция ABC.
// Завершённый импульс торгуем ПРОТИВ его направления (ожидаем откат),
// завершённая коррекция — в сторону прежнего тренда.
type Elliott struct {
	cfg ElliottConfig
}

func NewElliott(cfg ElliottConfig) *Elliott { return &Elliott{cfg: cfg} }

func (a *Elliott) Name() string { return "elliott" }

func (a *Elliott) Analyze(w models.Window, key models.Key) models.AnalyzerResult {
	if len(w) < a.cfg.MinCandles {
		return none()
	}

	pivots := a.findPivots(w)
	if len(pivots) < a.cfg.MinPivots {
		return none()
	}
	if len(pivots) > 10 {
		pivots = pivots[len(pivots)-10:]
	}

	if res, ok := a.impulse(pivots); ok {
		return res
	}
	if res, ok := a.correction(pivots); ok {
		return res
	}
	return none()
}

// findPivots — локальные экстремумы: high[i] строго выше всех соседей
// в радиусе PivotWindow (для low зеркально).
func (a *Elliott) findPivots(w models.Window) []pivot {
	var pivots []pivot
	win := a.cfg.PivotWindow

	for i := win; i < len(w)-win; i++ {
		isHigh := true
		for j := i - win; j <= i+win; j++ {
			if j != i && w[j].High >= w[i].High {
				isHigh = false
				break
			}
		}
		if isHigh {
			pivots = append(pivots, pivot{kind: pivotHigh, price: w[i].High, index: i, time: w[i].OpenTime})
			continue
		}

		isLow := true
		for j := i - win; j <= i+win; j++ {
			if j != i && w[j].Low <= w[i].Low {
				isLow = false
				break
			}
		}
		if isLow {
			pivots = append(pivots, pivot{kind: pivotLow, price: w[i].Low, index: i, time: w[i].OpenTime})
		}
	}
	return pivots
}

func kinds(p []pivot, want ...pivotKind) bool {
	if len(p) < len(want) {
		return false
	}
	p = p[len(p)-len(want):]
	for i := range want {
		if p[i].kind != want[i] {
			return false
		}
	}
	return true
}

// impulse проверяет завершённую пятиволновку на последних шести пивотах.
// Правила: W2 не перекрывает W1 полностью, W3 не короче W1 и W5,
// W4 не заходит в ценовую зону W1.
func (a *Elliott) impulse(pivots []pivot) (models.AnalyzerResult, bool) {
	if len(pivots) < 6 {
		return none(), false
	}
	last6 := pivots[len(pivots)-6:]

	// восходящий импульс: low-high-low-high-low-high
	if kinds(pivots, pivotLow, pivotHigh, pivotLow, pivotHigh, pivotLow, pivotHigh) {
		p0, p1, p2, p3, p4, p5 := last6[0].price, last6[1].price, last6[2].price, last6[3].price, last6[4].price, last6[5].price
		w1, w2, w3 := p1-p0, p1-p2, p3-p2
		w5 := p5 - p4
		if w1 > 0 && w2/w1 < 1.0 && w3 >= w1 && w3 >= w5 && p4 > p1 {
			conf := a.impulseConfidence(w1, w3, w5)
			return models.AnalyzerResult{
				Signal:     models.DirectionShort,
				Confidence: conf,
				Rationale: []string{
					"завершённая пятиволновка вверх",
					fmt.Sprintf("пятая волна у %.6f, ждём коррекцию вниз", p5),
				},
				Detail: map[string]any{
					"wave_type": "impulse_up_complete",
					"wave_1":    w1, "wave_3": w3, "wave_5": w5,
					"wave_5_target": p5,
				},
			}, true
		}
	}

	// нисходящий импульс: high-low-high-low-high-low
	if kinds(pivots, pivotHigh, pivotLow, pivotHigh, pivotLow, pivotHigh, pivotLow) {
		p0, p1, p2, p3, p4, p5 := last6[0].price, last6[1].price, last6[2].price, last6[3].price, last6[4].price, last6[5].price
		w1, w2, w3 := p0-p1, p2-p1, p2-p3
		w5 := p4 - p5
		if w1 > 0 && w2/w1 < 1.0 && w3 >= w1 && w3 >= w5 && p4 < p1 {
			conf := a.impulseConfidence(w1, w3, w5)
			return models.AnalyzerResult{
				Signal:     models.DirectionLong,
				Confidence: conf,
				Rationale: []string{
					"завершённая пятиволновка вниз",
					fmt.Sprintf("пятая волна у %.6f, ждём коррекцию вверх", p5),
				},
				Detail: map[string]any{
					"wave_type": "impulse_down_complete",
					"wave_1":    w1, "wave_3": w3, "wave_5": w5,
					"wave_5_target": p5,
				},
			}, true
		}
	}

	return none(), false
}

// correction — коррекция ABC после тренда, сигнал в сторону возобновления.
// Отношение C/A около фибо-уровней 0.618 / 1.0 / 1.618 поднимает уверенность.
func (a *Elliott) correction(pivots []pivot) (models.AnalyzerResult, bool) {
	if len(pivots) < 4 {
		return none(), false
	}
	last4 := pivots[len(pivots)-4:]

	// коррекция после роста: high-low-high-low → возобновление LONG
	if kinds(pivots, pivotHigh, pivotLow, pivotHigh, pivotLow) {
		waveA := last4[0].price - last4[1].price
		waveC := last4[2].price - last4[3].price
		if waveA > 0 {
			ratio := waveC / waveA
			if ratio >= 0.8 && ratio <= 1.618 {
				conf := a.correctionConfidence(ratio)
				return models.AnalyzerResult{
					Signal:     models.DirectionLong,
					Confidence: conf,
					Rationale: []string{
						"коррекция ABC после роста выглядит завершённой",
						fmt.Sprintf("C/A=%.3f, зона входа %.6f", ratio, last4[3].price),
					},
					Detail: map[string]any{
						"wave_type":  "correction_complete",
						"c_to_a":     ratio,
						"entry_zone": last4[3].price,
					},
				}, true
			}
		}
	}

	// коррекция после падения: low-high-low-high → возобновление SHORT
	if kinds(pivots, pivotLow, pivotHigh, pivotLow, pivotHigh) {
		waveA := last4[1].price - last4[0].price
		waveC := last4[3].price - last4[2].price
		if waveA > 0 {
			ratio := waveC / waveA
			if ratio >= 0.8 && ratio <= 1.618 {
				conf := a.correctionConfidence(ratio)
				return models.AnalyzerResult{
					Signal:     models.DirectionShort,
					Confidence: conf,
					Rationale: []string{
						"коррекция ABC после падения выглядит завершённой",
						fmt.Sprintf("C/A=%.3f, зона входа %.6f", ratio, last4[3].price),
					},
					Detail: map[string]any{
						"wave_type":  "correction_complete",
						"c_to_a":     ratio,
						"entry_zone": last4[3].price,
					},
				}, true
			}
		}
	}

	return none(), false
}

func (a *Elliott) impulseConfidence(w1, w3, w5 float64) float64 {
	conf := 0.5
	if w3 >= w1 && w3 >= w5 {
		conf += 0.2
	}
	if w3 > 1.618*w1 {
		conf += 0.15
	}
	if w5 < w3 {
		conf += 0.15
	}
	return clamp01(conf)
}

func (a *Elliott) correctionConfidence(ratio float64) float64 {
	conf := 0.5
	// близость к типовым фибо-отношениям
	best := math.Inf(1)
	for _, target := range []float64{0.618, 1.0, 1.618} {
		best = math.Min(best, math.Abs(ratio-target))
	}
	if best <= 0.05 {
		conf += 0.3
	} else if best <= 0.15 {
		conf += 0.15
	}
	return math.Min(conf, 0.8)
}
