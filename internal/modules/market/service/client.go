package service

import (
	"context"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"signal_bot/internal/modules/config"
)

// ServiceNotifier — сервисные сообщения в чат (старт/стоп стримера и т.п.).
type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Client — доступ к рынку: история по REST и живые клайны по WebSocket.
type Client struct {
	cfg *config.Config
	n   ServiceNotifier

	futures  *futures.Client
	limiter  *rate.Limiter
	wsDialer *websocket.Dialer
}

func NewClient(cfg *config.Config, n ServiceNotifier) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Market.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// публичные клайны не требуют ключей
	fc := futures.NewClient("", "")
	fc.HTTPClient = httpClient
	if cfg.Market.RESTURL != "" {
		fc.BaseURL = cfg.Market.RESTURL
	}

	return &Client{
		cfg:      cfg,
		n:        n,
		futures:  fc,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}
