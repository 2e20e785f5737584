// Package analyzers — детекторы паттернов по окну закрытых свечей.
// Каждый анализатор — чистая функция над снапшотом окна: никакого
// внутреннего состояния между вызовами, один и тот же вход даёт один
// и тот же результат.
package analyzers

import "signal_bot/internal/models"

type Analyzer interface {
	Name() string
	Analyze(w models.Window, key models.Key) models.AnalyzerResult
}

func none() models.AnalyzerResult {
	return models.AnalyzerResult{Signal: models.DirectionNone, Confidence: 0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
