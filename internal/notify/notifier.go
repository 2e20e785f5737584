package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	SendService(ctx context.Context, format string, args ...any)
	PublishSignal(ctx context.Context, sig *models.Signal)
}

// Telegram — пассивный нотифайер: сигналы и сервисные сообщения в канал.
// Без токена работает как заглушка, ядро об этом не знает.
type Telegram struct {
	bot     *tgbot.BotAPI
	chatID  int64
	timeout time.Duration
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	t := &Telegram{
		chatID:  cfg.Telegram.ChatID,
		timeout: cfg.NotifyTimeout,
	}
	if cfg.Telegram.Token == "" {
		logger.Warn("notify: телеграм-токен не задан, сигналы идут только в стор")
		return t, nil
	}

	// таймаут на отправку живёт в http-клиенте: завис — дропнули,
	// сигнал уже в сторе
	client := &http.Client{Timeout: cfg.NotifyTimeout}
	b, err := tgbot.NewBotAPIWithClient(cfg.Telegram.Token, tgbot.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("notify: init telegram: %w", err)
	}
	t.bot = b
	return t, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	m := tgbot.NewMessage(t.chatID, msg)
	m.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(m); err != nil {
		logger.Warn("notify: send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// SendService — сервисные сообщения (старт стримера, прогрев).
func (t *Telegram) SendService(_ context.Context, format string, args ...any) {
	t.Sendf(format, args...)
}

// PublishSignal — зовётся ядром не больше одного раза на сигнал.
func (t *Telegram) PublishSignal(_ context.Context, sig *models.Signal) {
	t.Send(FormatSignal(sig))
}

// FormatSignal рендерит сигнал в сообщение канала.
func FormatSignal(sig *models.Signal) string {
	arrow := "🟢 LONG"
	if sig.Direction == models.DirectionShort {
		arrow = "🔴 SHORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n\n", arrow, sig.Symbol, sig.Timeframe)
	fmt.Fprintf(&b, "Вход: `%.6f`\n", sig.EntryPrice)
	fmt.Fprintf(&b, "Стоп: `%.6f`\n", sig.StopLoss)
	fmt.Fprintf(&b, "Цели: `%.6f` / `%.6f` / `%.6f`\n\n", sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3)
	fmt.Fprintf(&b, "Уверенность: *%.1f%%* (ярус %v)\n", sig.Confidence*100, sig.FusionTier)
	fmt.Fprintf(&b, "R:R %.2f:1\n", sig.RiskReward)
	fmt.Fprintf(&b, "Причина: %s\n", sig.FusionReason)

	var parts []string
	for _, p := range []struct {
		name string
		res  models.AnalyzerResult
	}{
		{"Wyckoff", sig.Wyckoff},
		{"Elliott", sig.Elliott},
		{"RSI", sig.RSI},
		{"MACD", sig.MACD},
	} {
		if p.res.Signal != models.DirectionNone {
			parts = append(parts, fmt.Sprintf("%s %s %.0f%%", p.name, p.res.Signal, p.res.Confidence*100))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "Анализаторы: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
