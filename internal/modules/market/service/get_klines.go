package service

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

const maxKlinesPerRequest = 1500

// GetKlines тянет по REST последние limit закрытых свечей ключа.
// Таймаут на запрос, до трёх повторов с растущей паузой, rate limiter
// общий на клиента, чтобы прогрев не упёрся в лимиты биржи.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}

	const maxRetries = 3
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Market.RequestTimeout)
		klines, err := c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(reqCtx)
		cancel()

		if err == nil {
			return convertKlines(symbol, interval, klines), nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, errors.Wrapf(lastErr, "get klines %s %s", symbol, interval)
}

func convertKlines(symbol, interval string, klines []*futures.Kline) []models.Candle {
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		c := models.Candle{
			Symbol:    symbol,
			Timeframe: interval,
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Final:     true, // история отдаёт только закрытые свечи
		}
		var ok bool
		if c.Open, ok = parsePrice(k.Open); !ok {
			continue
		}
		if c.High, ok = parsePrice(k.High); !ok {
			continue
		}
		if c.Low, ok = parsePrice(k.Low); !ok {
			continue
		}
		if c.Close, ok = parsePrice(k.Close); !ok {
			continue
		}
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		c.QuoteVolume, _ = strconv.ParseFloat(k.QuoteAssetVolume, 64)
		c.TradeCount = k.TradeNum
		c.TakerBuyBase, _ = strconv.ParseFloat(k.TakerBuyBaseAssetVolume, 64)
		c.TakerBuyQuote, _ = strconv.ParseFloat(k.TakerBuyQuoteAssetVolume, 64)
		out = append(out, c)
	}
	return out
}

func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil && v > 0
}
