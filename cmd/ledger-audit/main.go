package main

import (
	"context"
	"os"

	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

// ledger-audit replays every wallet's entry chain and exits non-zero when a
// wallet does not reconcile with its stored balance.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PoolOptions(), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	ledger := services.NewLedgerService(repositories.NewWalletRepo(pool), db.NewTransactor(pool), log)

	ids, err := ledger.AllWalletIDs(ctx)
	if err != nil {
		log.Fatal("failed to list wallets", zap.Error(err))
	}

	broken := 0
	for _, id := range ids {
		report, err := ledger.VerifyChain(ctx, id)
		if err != nil {
			log.Error("verify failed", zap.String("wallet_id", id.String()), zap.Error(err))
			broken++
			continue
		}
		if report.OK() {
			continue
		}
		broken++
		log.Error("wallet chain broken",
			zap.String("wallet_id", id.String()),
			zap.Int("entries", report.Entries),
			zap.String("balance", money.String(report.Balance)),
			zap.String("replayed", money.String(report.Computed)),
			zap.Any("breaks", report.Breaks),
		)
	}

	log.Info("ledger audit finished", zap.Int("wallets", len(ids)), zap.Int("broken", broken))
	if broken > 0 {
		pool.Close()
		os.Exit(1)
	}
}
