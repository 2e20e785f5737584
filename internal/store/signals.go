package store

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"signal_bot/internal/models"
)

// analyzerBlob — суб-результаты анализаторов, как они лежат в jsonb.
type analyzerBlob struct {
	Wyckoff models.AnalyzerResult `json:"wyckoff"`
	Elliott models.AnalyzerResult `json:"elliott"`
	RSI     models.AnalyzerResult `json:"rsi"`
	MACD    models.AnalyzerResult `json:"macd"`
}

// InsertSignal пишет эмитнутый сигнал и возвращает присвоенный id.
func (s *Store) InsertSignal(ctx context.Context, sig *models.Signal) (id int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Store.InsertSignal: %w", err)
		}
	}()

	blob, err := sonic.Marshal(analyzerBlob{
		Wyckoff: sig.Wyckoff,
		Elliott: sig.Elliott,
		RSI:     sig.RSI,
		MACD:    sig.MACD,
	})
	if err != nil {
		return 0, err
	}

	err = withRetry(ctx, "insert signal", func() error {
		return s.tm.Conn().QueryRow(ctx, `
			INSERT INTO signals (
				symbol, timeframe, direction,
				entry_price, stop_loss, take_profit_1, take_profit_2, take_profit_3,
				confidence, fusion_tier, fusion_reason,
				atr, risk_reward, analyzers, generated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING id`,
			sig.Symbol, sig.Timeframe, string(sig.Direction),
			sig.EntryPrice, sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
			sig.Confidence, sig.FusionTier, sig.FusionReason,
			sig.ATR, sig.RiskReward, blob, sig.GeneratedAt,
		).Scan(&id)
	})
	return id, err
}

// RecentSignals — последние сигналы по ключу, новые первыми.
func (s *Store) RecentSignals(ctx context.Context, symbol, timeframe string, limit int) (out []models.Signal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Store.RecentSignals: %w", err)
		}
	}()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.tm.Conn().Query(ctx, `
		SELECT id, symbol, timeframe, direction,
		       entry_price, stop_loss, take_profit_1, take_profit_2, take_profit_3,
		       confidence, fusion_tier, fusion_reason,
		       atr, risk_reward, analyzers, generated_at
		FROM signals
		WHERE symbol = $1 AND ($2 = '' OR timeframe = $2)
		ORDER BY generated_at DESC
		LIMIT $3`, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sig       models.Signal
			direction string
			blob      []byte
		)
		if err := rows.Scan(
			&sig.ID, &sig.Symbol, &sig.Timeframe, &direction,
			&sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit1, &sig.TakeProfit2, &sig.TakeProfit3,
			&sig.Confidence, &sig.FusionTier, &sig.FusionReason,
			&sig.ATR, &sig.RiskReward, &blob, &sig.GeneratedAt,
		); err != nil {
			return nil, err
		}
		sig.Direction = models.Direction(direction)
		if len(blob) > 0 {
			var sub analyzerBlob
			if err := sonic.Unmarshal(blob, &sub); err == nil {
				sig.Wyckoff, sig.Elliott, sig.RSI, sig.MACD = sub.Wyckoff, sub.Elliott, sub.RSI, sub.MACD
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
