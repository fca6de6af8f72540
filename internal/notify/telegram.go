// Package notify sends operator alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram caps message text at 4096 characters.
const maxMessageRunes = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramAlerter struct {
	api    sender
	chatID int64
	log    *slog.Logger
}

func NewTelegramAlerter(token string, chatID int64, log *slog.Logger) (*TelegramAlerter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Info("telegram alerts enabled", "bot", api.Self.UserName, "chat_id", chatID)
	return &TelegramAlerter{api: api, chatID: chatID, log: log}, nil
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, truncate("[nexora] "+text))
	msg.DisableWebPagePreview = true
	if _, err := a.api.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageRunes-1]) + "…"
}
