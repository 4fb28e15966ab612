package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

// Bot Notify Bridge subscribes to events:bot and delivers each notification
// to Telegram directly, or through the bot service when no token is set.

type sender interface {
	SendNotification(ctx context.Context, telegramUserID int64, text string) error
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	var out sender
	if cfg.BotToken != "" {
		tg, err := services.NewTelegramSender(cfg.BotToken)
		if err != nil {
			log.Fatal("failed to init telegram client", zap.Error(err))
		}
		out = tg
	} else {
		out = services.NewBotClient(cfg.BotInternalURL, log)
	}

	subscriber := events.NewSubscriber(cfg, rdb, "bot-notify-bridge", log)

	log.Info("bot-notify-bridge started")

	if err := subscriber.Subscribe(ctx, events.StreamBot, func(event events.Event) {
		forward(ctx, out, event, log)
	}); err != nil {
		log.Fatal("subscribe failed", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down bot-notify-bridge")
	cancel()
}

func forward(ctx context.Context, out sender, event events.Event, log *zap.Logger) {
	if event.Type != events.EventBotNotification {
		return
	}
	telegramUserID, ok := telegramID(event.Payload["telegram_user_id"])
	if !ok {
		log.Warn("notification without telegram_user_id")
		return
	}

	text, _ := event.Payload["text"].(string)
	if text == "" {
		text = fmt.Sprintf("Event: %s", event.Type)
	}

	if err := out.SendNotification(ctx, telegramUserID, text); err != nil {
		recipient, _ := event.Payload["recipient"].(string)
		log.Warn("failed to forward notification",
			zap.Int64("telegram_user_id", telegramUserID),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
	}
}

// telegramID accepts the id as decoded from JSON (float64) or as published
// in-process (int64).
func telegramID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case float64:
		return int64(id), true
	case int:
		return int64(id), true
	}
	return 0, false
}
