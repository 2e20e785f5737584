package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

// UpsertCandle — идемпотентная вставка закрытой свечи.
// Повтор по (symbol_id, timeframe, open_time) возвращает ErrDuplicate:
// вызывающий логирует INFO и живёт дальше.
func (s *Store) UpsertCandle(ctx context.Context, c models.Candle) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, ErrDuplicate) {
			err = fmt.Errorf("Store.UpsertCandle: %w", err)
		}
	}()

	symbolID, err := s.symbolID(ctx, c.Symbol)
	if err != nil {
		return err
	}

	return withRetry(ctx, "upsert candle", func() error {
		tag, err := s.tm.Conn().Exec(ctx, `
			INSERT INTO candles (
				symbol_id, timeframe, open_time, close_time,
				open, high, low, close, volume,
				quote_volume, trade_count, taker_buy_base, taker_buy_quote
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (symbol_id, timeframe, open_time) DO NOTHING`,
			symbolID, c.Timeframe, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.QuoteVolume, c.TradeCount, c.TakerBuyBase, c.TakerBuyQuote,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicate
		}
		return nil
	})
}

// BulkUpsertCandles — пакетная заливка прогревочной истории одной
// транзакцией. Дубликаты молча пропускаются.
func (s *Store) BulkUpsertCandles(ctx context.Context, candles []models.Candle) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Store.BulkUpsertCandles: %w", err)
		}
	}()

	if len(candles) == 0 {
		return nil
	}
	symbolID, err := s.symbolID(ctx, candles[0].Symbol)
	if err != nil {
		return err
	}

	return s.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, c := range candles {
			if _, err := tx.Exec(ctx, `
				INSERT INTO candles (
					symbol_id, timeframe, open_time, close_time,
					open, high, low, close, volume,
					quote_volume, trade_count, taker_buy_base, taker_buy_quote
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
				ON CONFLICT (symbol_id, timeframe, open_time) DO NOTHING`,
				symbolID, c.Timeframe, c.OpenTime, c.CloseTime,
				c.Open, c.High, c.Low, c.Close, c.Volume,
				c.QuoteVolume, c.TradeCount, c.TakerBuyBase, c.TakerBuyQuote,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteCandlesOlderThan — обслуживание: чистка хвоста истории.
// Ядром не зовётся, живёт для внешних команд.
func (s *Store) DeleteCandlesOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.tm.Conn().Exec(ctx,
		`DELETE FROM candles WHERE open_time < $1`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("Store.DeleteCandlesOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteCandlesNotInTimeframes удаляет свечи таймфреймов, за которыми
// бот больше не следит.
func (s *Store) DeleteCandlesNotInTimeframes(ctx context.Context, keep []string) (int64, error) {
	tag, err := s.tm.Conn().Exec(ctx,
		`DELETE FROM candles WHERE timeframe != ALL($1)`, keep)
	if err != nil {
		return 0, fmt.Errorf("Store.DeleteCandlesNotInTimeframes: %w", err)
	}
	return tag.RowsAffected(), nil
}
