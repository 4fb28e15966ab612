package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Streams
const (
	StreamWallet = "events:wallet"
	StreamBot    = "events:bot"
)

// Event types
const (
	EventPaymentCompleted = "payment_completed"
	EventCommissionPaid   = "commission_paid"
	EventBotNotification  = "bot_notification"
)

type Event struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// encode stamps OccurredAt when the producer left it empty.
func encode(event Event) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(event)
}

// dispatch decodes one message and runs the handler. A panicking handler
// drops only that message.
func dispatch(log *zap.Logger, stream string, data []byte, handler func(Event)) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Error("failed to unmarshal event", zap.String("stream", stream), zap.Error(err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panicked",
				zap.String("stream", stream),
				zap.String("type", event.Type),
				zap.Any("panic", r),
			)
		}
	}()
	handler(event)
}
