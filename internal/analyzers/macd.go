package analyzers

import (
	"fmt"
	"math"

	"signal_bot/internal/indicators"
	"signal_bot/internal/models"
)

type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
}

func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: 12, Slow: 26, Signal: 9}
}

// MACDAnalyzer ловит пересечение гистограммы через ноль на последней свече.
type MACDAnalyzer struct {
	cfg MACDConfig
}

func NewMACD(cfg MACDConfig) *MACDAnalyzer { return &MACDAnalyzer{cfg: cfg} }

func (a *MACDAnalyzer) Name() string { return "macd" }

func (a *MACDAnalyzer) Analyze(w models.Window, key models.Key) models.AnalyzerResult {
	macd, _, hist := indicators.MACD(w.Closes(), a.cfg.Fast, a.cfg.Slow, a.cfg.Signal)
	n := len(hist)
	if n < 2 {
		return none()
	}
	curr, prev := hist[n-1], hist[n-2]
	currMACD := macd[n-1]
	if math.IsNaN(curr) || math.IsNaN(prev) || math.IsNaN(currMACD) {
		return none()
	}

	detail := map[string]any{"macd": currMACD, "histogram": curr, "prev_histogram": prev}

	// бычий кросс: гистограмма перешла из ≤0 в >0
	if prev <= 0 && curr > 0 {
		strength := math.Min(math.Abs(curr)*100, 0.4)
		zeroBonus := 0.1
		if currMACD > 0 {
			zeroBonus = 0.2
		}
		return models.AnalyzerResult{
			Signal:     models.DirectionLong,
			Confidence: clamp01(0.5 + strength + zeroBonus),
			Rationale:  []string{fmt.Sprintf("бычий кросс MACD, гистограмма %.5f", curr)},
			Detail:     detail,
		}
	}

	// медвежий кросс: из ≥0 в <0
	if prev >= 0 && curr < 0 {
		strength := math.Min(math.Abs(curr)*100, 0.4)
		zeroBonus := 0.1
		if currMACD < 0 {
			zeroBonus = 0.2
		}
		return models.AnalyzerResult{
			Signal:     models.DirectionShort,
			Confidence: clamp01(0.5 + strength + zeroBonus),
			Rationale:  []string{fmt.Sprintf("медвежий кросс MACD, гистограмма %.5f", curr)},
			Detail:     detail,
		}
	}

	r := none()
	r.Detail = detail
	return r
}
