package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gton-market/settlement/internal/app"
	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/providers/tonpay"
	"github.com/gton-market/settlement/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// worker runs the reconciliation loop and keeps the rate tables warm.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PoolOptions(), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	var transfers tonpay.TransferSource
	if wallet, err := app.ConnectHotWallet(ctx, cfg, log); err != nil {
		log.Warn("TON unavailable, tonpay payments stay pending until the indexer settles them", zap.Error(err))
	} else {
		transfers = wallet
	}

	core, err := app.NewCore(ctx, cfg, pool, events.NewPublisher(cfg, rdb, log), transfers, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	reconciler := services.NewReconciler(core.Payment, core.Payments, core.Registry, services.ReconcilerConfig{
		Interval:        cfg.ReconcileInterval,
		BatchSize:       cfg.ReconcileBatchSize,
		ItemDelay:       cfg.ReconcileItemDelay,
		ProviderTimeout: cfg.ProviderTimeout,
	}, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		core.Rates.Prewarm(ctx, cfg.PrewarmCrypto, cfg.FiatRefreshInterval, cfg.CryptoRefresh)
	}()

	// Metrics + health
	srv := fiber.New(fiber.Config{DisableStartupMessage: true})
	srv.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	go func() {
		addr := fmt.Sprintf(":%s", cfg.WorkerPort)
		if err := srv.Listen(addr); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	_ = srv.Shutdown()
	wg.Wait()
}
