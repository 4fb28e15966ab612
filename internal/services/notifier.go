package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"go.uber.org/zap"
)

// Notifier tells a user about a settlement or commission. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, text string)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventNotifier resolves the Telegram id and hands the message to the bot
// bridge over events:bot.
type EventNotifier struct {
	users     UserLookup
	publisher events.Publisher
	log       *zap.Logger
}

func NewEventNotifier(users UserLookup, publisher events.Publisher, log *zap.Logger) *EventNotifier {
	return &EventNotifier{users: users, publisher: publisher, log: log}
}

func (n *EventNotifier) Notify(ctx context.Context, userID uuid.UUID, text string) {
	u, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.log.Warn("notify: user lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	err = n.publisher.Publish(ctx, events.StreamBot, events.Event{
		Type: events.EventBotNotification,
		Payload: map[string]any{
			"telegram_user_id": u.TelegramUserID,
			"recipient":        u.Mention(),
			"text":             text,
		},
	})
	if err != nil {
		n.log.Warn("notify: publish failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
