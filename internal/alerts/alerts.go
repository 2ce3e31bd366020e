// Package alerts pushes operational notifications to the on-call Telegram
// channel: dead-lettered jobs, worker panics, webhook verification failures.
package alerts

import (
	"fmt"

	"chatmind/backend/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers one formatted ops message. Implementations must never
// block the caller.
type Notifier interface {
	Alertf(format string, args ...any)
}

// Nop swallows alerts; used when no bot token is configured and in tests.
type Nop struct{}

func (Nop) Alertf(string, ...any) {}

// TelegramNotifier sends alerts to a fixed ops chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logger.Logger
}

// NewTelegramNotifier Constructor
func NewTelegramNotifier(token string, chatID int64, log *logger.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false
	log.Info("✅ Authorized on account", "bot", bot.Self.UserName)

	return &TelegramNotifier{bot: bot, chatID: chatID, log: log}, nil
}

// Alertf formats and sends the message from its own goroutine so a slow
// Telegram API never stalls a worker.
func (n *TelegramNotifier) Alertf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warn("failed to send ops alert", "error", err)
		}
	}()
}
