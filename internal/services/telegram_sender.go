package services

import (
	"context"

	"github.com/go-telegram/bot"
)

// TelegramSender delivers notifications straight through the Bot API.
// bot.New calls getMe, so construction needs network access.
type TelegramSender struct {
	bot *bot.Bot
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (s *TelegramSender) SendNotification(ctx context.Context, telegramUserID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: telegramUserID,
		Text:   text,
	})
	return err
}
