package analyzers

import (
	"fmt"
	"math"

	"signal_bot/internal/indicators"
	"signal_bot/internal/models"
)

type RSIConfig struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Period: 14, Oversold: 30, Overbought: 70}
}

// RSIAnalyzer — перепроданность/перекупленность по RSI Уайлдера.
// Чем дальше от пороговой зоны, тем выше уверенность.
type RSIAnalyzer struct {
	cfg RSIConfig
}

func NewRSI(cfg RSIConfig) *RSIAnalyzer { return &RSIAnalyzer{cfg: cfg} }

func (a *RSIAnalyzer) Name() string { return "rsi" }

func (a *RSIAnalyzer) Analyze(w models.Window, key models.Key) models.AnalyzerResult {
	rsi := indicators.RSI(w.Closes(), a.cfg.Period)
	if math.IsNaN(rsi) {
		return none()
	}

	detail := map[string]any{"rsi": rsi}

	if rsi < a.cfg.Oversold {
		conf := clamp01(0.5 + (a.cfg.Oversold-rsi)/a.cfg.Oversold)
		return models.AnalyzerResult{
			Signal:     models.DirectionLong,
			Confidence: conf,
			Rationale:  []string{fmt.Sprintf("RSI %.1f ниже %.0f, перепроданность", rsi, a.cfg.Oversold)},
			Detail:     detail,
		}
	}

	if rsi > a.cfg.Overbought {
		conf := clamp01(0.5 + (rsi-a.cfg.Overbought)/(100-a.cfg.Overbought))
		return models.AnalyzerResult{
			Signal:     models.DirectionShort,
			Confidence: conf,
			Rationale:  []string{fmt.Sprintf("RSI %.1f выше %.0f, перекупленность", rsi, a.cfg.Overbought)},
			Detail:     detail,
		}
	}

	r := none()
	r.Detail = detail
	return r
}
