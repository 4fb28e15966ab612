package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gton-market/settlement/internal/app"
	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/indexer"
	"go.uber.org/zap"
)

const pollInterval = 5 * time.Second

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wallet, err := app.ConnectHotWallet(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

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

	core, err := app.NewCore(ctx, cfg, pool, events.NewPublisher(cfg, rdb, log), wallet, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	log.Info("TON indexer started",
		zap.String("hot_wallet", wallet.Address()),
		zap.String("network", cfg.TONNetwork),
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down TON indexer")
		cancel()
	}()

	indexer.New(wallet, indexer.NewRedisState(rdb), core.Payment, pollInterval, log).Run(ctx)
}
