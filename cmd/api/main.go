package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/app"
	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	apphttp "github.com/gton-market/settlement/internal/http"
	"github.com/gton-market/settlement/internal/http/handlers"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PoolOptions(), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Events
	publisher := events.NewPublisher(cfg, rdb, log)
	subscriber := events.NewFanoutSubscriber(cfg, rdb, "api-ws", log)

	// The API only creates tonpay invoices; chain checks run in the worker.
	core, err := app.NewCore(ctx, cfg, pool, publisher, nil, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	h := apphttp.Handlers{
		Auth:     handlers.NewAuthHandler(core.Users, cfg, log),
		User:     handlers.NewUserHandler(core.Users, core.Ledger, log),
		Wallet:   handlers.NewWalletHandler(core.Ledger, log),
		Payment:  handlers.NewPaymentHandler(core.Payment, core.Registry, log),
		Webhook:  handlers.NewWebhookHandler(core.Payment, log),
		Referral: handlers.NewReferralHandler(core.Referrals, core.Partners, core.Commissions, core.Users, log),
		Admin:    handlers.NewAdminHandler(core.Ledger, core.Payment, core.Partners, core.Audit, core.Users, log),
		WSHub:    wsHub,
	}

	if err := wsHub.Start(ctx); err != nil {
		log.Error("websocket hub subscription failed", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(server, cfg, log, rdb, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = server.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := server.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
