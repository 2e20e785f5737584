package models

import "time"

// Direction — сторона сигнала. Пустая строка = нет сигнала.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite возвращает противоположную сторону, DirectionNone остаётся как есть.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	}
	return DirectionNone
}

// AnalyzerResult — вердикт одного анализатора по событию закрытия свечи.
// Signal=DirectionNone подразумевает Confidence=0.
type AnalyzerResult struct {
	Signal     Direction      `json:"signal"`
	Confidence float64        `json:"confidence"`
	Rationale  []string       `json:"rationale,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Signal — итог фьюза, то что уходит в стор и нотифайер.
type Signal struct {
	ID        int64
	Symbol    string
	Timeframe string
	Direction Direction

	EntryPrice  float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	TakeProfit3 float64

	Confidence   float64
	FusionTier   float64 // 1, 2, 3, 3.5, 4
	FusionReason string

	ATR        float64
	RiskReward float64

	// Суб-результаты анализаторов, вошедшие в решение.
	Wyckoff AnalyzerResult
	Elliott AnalyzerResult
	RSI     AnalyzerResult
	MACD    AnalyzerResult

	GeneratedAt time.Time
}

// RiskRewardRatio — |TP1-entry| / |entry-SL|; 0 при вырожденном стопе.
func (s *Signal) RiskRewardRatio() float64 {
	risk := s.EntryPrice - s.StopLoss
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := s.TakeProfit1 - s.EntryPrice
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}
