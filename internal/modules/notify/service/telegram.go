package service

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_engine/internal/models"
)

type botSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram: пассивный нотифайер в один чат.
type Telegram struct {
	bot    botSender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(_ context.Context, env models.SignalEnvelope) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	msg := tgbot.NewMessage(t.chatID, formatSignal(env))
	msg.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
