package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

const (
	maxStreamsPerConn = 200

	reconnectStart = 5 * time.Second
	reconnectCap   = 60 * time.Second
)

// klineFrame — сообщение комбинированного стрима klin-ов.
type klineFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Event     string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		K         struct {
			OpenTime      int64  `json:"t"`
			CloseTime     int64  `json:"T"`
			Interval      string `json:"i"`
			Open          string `json:"o"`
			High          string `json:"h"`
			Low           string `json:"l"`
			Close         string `json:"c"`
			Volume        string `json:"v"`
			QuoteVolume   string `json:"q"`
			TradeCount    int64  `json:"n"`
			TakerBuyBase  string `json:"V"`
			TakerBuyQuote string `json:"Q"`
			IsFinal       bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// StreamNames собирает имена стримов для пар symbols × timeframes.
// Больше 200 стримов на одно соединение биржа не принимает — это
// ошибка конфигурации, а не повод ретраить.
func StreamNames(symbols, timeframes []string) ([]string, error) {
	streams := make([]string, 0, len(symbols)*len(timeframes))
	for _, s := range symbols {
		for _, tf := range timeframes {
			streams = append(streams, strings.ToLower(s)+"@kline_"+tf)
		}
	}
	if len(streams) == 0 {
		return nil, errors.New("пустой список стримов")
	}
	if len(streams) > maxStreamsPerConn {
		return nil, errors.Errorf("стримов %d, лимит соединения %d", len(streams), maxStreamsPerConn)
	}
	return streams, nil
}

// StreamKlines держит соединение с комбинированным стримом и гонит
// апдейты клайнов в out. Блокируется до отмены ctx; возвращает ошибку
// только на фатальных проблемах подписки (кривой запрос, 4xx на
// хендшейке раз за разом).
func (c *Client) StreamKlines(ctx context.Context, out chan<- models.Candle) error {
	streams, err := StreamNames(c.cfg.Symbols, c.cfg.Timeframes)
	if err != nil {
		return err
	}

	url := c.cfg.Market.WSURL + "/stream?streams=" + strings.Join(streams, "/")

	backoff := reconnectStart
	badHandshakes := 0

	if c.n != nil {
		c.n.SendService(ctx, "🚀 Binance: стример клайнов запущен\n• Стримов: %d\n• Таймфреймы: %s",
			len(streams), strings.Join(c.cfg.Timeframes, " / "))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		logger.Info("ws: connect, стримов %d", len(streams))
		conn, resp, err := c.wsDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				badHandshakes++
				// стабильный 4xx — подписка сломана, дальше биться бессмысленно
				if badHandshakes >= 3 {
					return errors.Wrapf(err, "handshake %d", resp.StatusCode)
				}
			}
			logger.Warn("ws: dial: %v (retry in %s)", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		badHandshakes = 0

		readErr := c.readLoop(ctx, conn, out, func() { backoff = reconnectStart })
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		logger.Warn("ws: read loop: %v (reconnect in %s)", readErr, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// readLoop читает кадры до ошибки соединения. onFirst зовётся после
// первого успешно разобранного сообщения (сброс бэкоффа).
func (c *Client) readLoop(ctx context.Context, conn wsConn, out chan<- models.Candle, onFirst func()) error {
	first := true
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		upd, ok := parseKlineFrame(msg)
		if !ok {
			logger.Warn("ws: malformed frame dropped: %.120s", string(msg))
			continue
		}
		if first {
			onFirst()
			first = false
		}

		select {
		case out <- upd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsConn — чтобы read loop можно было гонять в тестах без сети.
type wsConn interface {
	ReadMessage() (int, []byte, error)
}

func parseKlineFrame(msg []byte) (models.Candle, bool) {
	var frame klineFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return models.Candle{}, false
	}
	if frame.Data.Event != "kline" || frame.Data.Symbol == "" {
		return models.Candle{}, false
	}
	k := frame.Data.K

	c := models.Candle{
		Symbol:    frame.Data.Symbol,
		Timeframe: helper.NormTF(k.Interval),
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		Final:     k.IsFinal,
	}
	var err error
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return models.Candle{}, false
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return models.Candle{}, false
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return models.Candle{}, false
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return models.Candle{}, false
	}
	if c.Close <= 0 {
		return models.Candle{}, false
	}
	c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	c.QuoteVolume, _ = strconv.ParseFloat(k.QuoteVolume, 64)
	c.TradeCount = k.TradeCount
	c.TakerBuyBase, _ = strconv.ParseFloat(k.TakerBuyBase, 64)
	c.TakerBuyQuote, _ = strconv.ParseFloat(k.TakerBuyQuote, 64)

	if !models.ValidTimeframe(c.Timeframe) {
		return models.Candle{}, false
	}
	return c, true
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > reconnectCap {
		next = reconnectCap
	}
	return next
}
