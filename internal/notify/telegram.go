// Package notify - внешний канал алертов (circuit breaker, дневной лимит).
package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram отправляет алерты движка в Telegram-чат оператора.
// Нулевой указатель безопасен: алерты тогда просто не отправляются.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram создает сервис алертов. При пустом токене возвращает nil -
// алерты отключены.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ Alert bot authorized", slog.String("username", bot.Self.UserName))

	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Notify отправляет сообщение оператору. Ошибки отправки только логируются:
// алертинг не должен влиять на конвейер копирования.
func (t *Telegram) Notify(message string) {
	if t == nil {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, message)

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("Failed to send alert", slog.Any("error", err))
	}
}
