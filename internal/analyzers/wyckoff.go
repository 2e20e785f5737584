package analyzers

import (
	"fmt"
	"math"

	"signal_bot/internal/indicators"
	"signal_bot/internal/models"
)

// Фаза рынка по Вайкоффу.
type WyckoffPhase string

const (
	PhaseAccumulation WyckoffPhase = "accumulation"
	PhaseMarkup       WyckoffPhase = "markup"
	PhaseDistribution WyckoffPhase = "distribution"
	PhaseMarkdown     WyckoffPhase = "markdown"
	PhaseUnknown      WyckoffPhase = "unknown"
)

type WyckoffConfig struct {
	MinCandles  int     // минимум свечей для анализа
	RangeLen    int     // хвост для торгового диапазона
	VolumeSMA   int     // период объёмной SMA
	VolumeMult  float64 // порог всплеска объёма на спринге/апрасте
	MinConfid   float64 // ниже — NONE
	PhaseLen    int     // хвост для классификации фазы
	SidewaysPct float64 // диапазон уже этого процента = боковик
}

func DefaultWyckoffConfig() WyckoffConfig {
	return WyckoffConfig{
		MinCandles:  100,
		RangeLen:    50,
		VolumeSMA:   20,
		VolumeMult:  1.5,
		MinConfid:   0.35,
		PhaseLen:    30,
		SidewaysPct: 5.0,
	}
}

// Wyckoff ищет спринг (ложный пробой низа диапазона) и апраст
// (ложный пробой верха) в подходящей фазе.
type Wyckoff struct {
	cfg WyckoffConfig
}

func NewWyckoff(cfg WyckoffConfig) *Wyckoff { return &Wyckoff{cfg: cfg} }

func (a *Wyckoff) Name() string { return "wyckoff" }

func (a *Wyckoff) Analyze(w models.Window, key models.Key) models.AnalyzerResult {
	if len(w) < a.cfg.MinCandles {
		return none()
	}

	phase := a.detectPhase(w)

	// диапазон считаем по хвосту БЕЗ последней свечи: её пробой и проверяем
	tail := w[len(w)-1-a.cfg.RangeLen : len(w)-1]
	rangeHigh := tail[0].High
	rangeLow := tail[0].Low
	for _, c := range tail[1:] {
		rangeHigh = math.Max(rangeHigh, c.High)
		rangeLow = math.Min(rangeLow, c.Low)
	}
	rangeWidth := rangeHigh - rangeLow
	if rangeWidth <= 0 {
		return none()
	}

	last := w.Last()
	volSMA := indicators.SMA(w[:len(w)-1].Volumes(), a.cfg.VolumeSMA)
	if math.IsNaN(volSMA) || volSMA <= 0 {
		return none()
	}
	volMult := last.Volume / volSMA

	// спринг: прокол низа с возвратом, накопление, всплеск объёма
	if phase == PhaseAccumulation && last.Low < rangeLow && last.Close >= rangeLow && volMult > a.cfg.VolumeMult {
		penetration := (rangeLow - last.Low) / rangeWidth
		conf := a.confidence(penetration, volMult)
		if conf < a.cfg.MinConfid {
			return none()
		}
		return models.AnalyzerResult{
			Signal:     models.DirectionLong,
			Confidence: conf,
			Rationale: []string{
				fmt.Sprintf("спринг в фазе %s", phase),
				fmt.Sprintf("прокол поддержки %.6f, закрытие %.6f выше", rangeLow, last.Close),
				fmt.Sprintf("объём x%.2f к SMA(%d)", volMult, a.cfg.VolumeSMA),
			},
			Detail: map[string]any{
				"phase":       string(phase),
				"range_low":   rangeLow,
				"range_high":  rangeHigh,
				"penetration": penetration,
				"volume_mult": volMult,
			},
		}
	}

	// апраст: зеркально, прокол верха в дистрибуции
	if phase == PhaseDistribution && last.High > rangeHigh && last.Close <= rangeHigh && volMult > a.cfg.VolumeMult {
		penetration := (last.High - rangeHigh) / rangeWidth
		conf := a.confidence(penetration, volMult)
		if conf < a.cfg.MinConfid {
			return none()
		}
		return models.AnalyzerResult{
			Signal:     models.DirectionShort,
			Confidence: conf,
			Rationale: []string{
				fmt.Sprintf("апраст в фазе %s", phase),
				fmt.Sprintf("прокол сопротивления %.6f, закрытие %.6f ниже", rangeHigh, last.Close),
				fmt.Sprintf("объём x%.2f к SMA(%d)", volMult, a.cfg.VolumeSMA),
			},
			Detail: map[string]any{
				"phase":       string(phase),
				"range_low":   rangeLow,
				"range_high":  rangeHigh,
				"penetration": penetration,
				"volume_mult": volMult,
			},
		}
	}

	r := none()
	r.Detail = map[string]any{"phase": string(phase)}
	return r
}

// confidence растёт от глубины прокола (в долях ширины диапазона)
// и от превышения объёма; верх зажат единицей.
func (a *Wyckoff) confidence(penetration, volMult float64) float64 {
	conf := 0.3 + penetration*2.0 + (volMult-1.0)*0.2
	return math.Min(conf, 1.0)
}

// detectPhase — положение цены в диапазоне + наклон объёмной средней.
// Боковик с растущим объёмом — накопление; боковик с затухающим объёмом
// без падения цены — дистрибуция; боковик с затухающим объёмом и падением —
// unknown; вне боковика — тренд (markup/markdown).
func (a *Wyckoff) detectPhase(w models.Window) WyckoffPhase {
	if len(w) < a.cfg.PhaseLen {
		return PhaseUnknown
	}
	recent := w[len(w)-a.cfg.PhaseLen:]

	high := recent[0].High
	low := recent[0].Low
	for _, c := range recent[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	if low <= 0 {
		return PhaseUnknown
	}
	rangePct := (high - low) / low * 100

	closes := recent.Closes()
	half := len(closes) / 2
	trend := mean(closes[half:]) - mean(closes[:half])

	vols := recent.Volumes()
	volSlope := mean(vols[len(vols)-half:]) - mean(vols[:half])

	if rangePct < a.cfg.SidewaysPct {
		if volSlope > 0 {
			return PhaseAccumulation
		}
		if trend >= 0 {
			return PhaseDistribution
		}
		return PhaseUnknown
	}
	if trend > 0 {
		return PhaseMarkup
	}
	return PhaseMarkdown
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
