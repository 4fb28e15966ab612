// Package app wires the settlement services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers"
	"github.com/gton-market/settlement/internal/providers/cryptobot"
	"github.com/gton-market/settlement/internal/providers/tonpay"
	"github.com/gton-market/settlement/internal/ratesource"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/services"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/gton-market/settlement/internal/ton"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var errTONUnavailable = errors.New("ton node unavailable")

// noTransfers stands in for the hot wallet when no lite server is reachable:
// tonpay checks then keep payments pending.
type noTransfers struct{}

func (noTransfers) RecentTransfers(context.Context, int) ([]ton.Transfer, error) {
	return nil, errTONUnavailable
}

type Core struct {
	Users    *repositories.UserRepo
	Payments *repositories.PaymentRepo

	Settings  *settings.Reader
	Rates     *services.RateCache
	Converter *services.Converter
	Registry  *providers.Registry
	Publisher events.Publisher

	Ledger      *services.LedgerService
	Payment     *services.PaymentService
	Commissions *services.CommissionService
	Referrals   *services.ReferralService
	Partners    *services.PartnerService
	Audit       *services.AuditService
}

// NewCore builds the service graph. transfers may be nil when the binary
// has no TON connection.
func NewCore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, publisher events.Publisher, transfers tonpay.TransferSource, log *zap.Logger) (*Core, error) {
	tx := db.NewTransactor(pool)

	users := repositories.NewUserRepo(pool)
	wallets := repositories.NewWalletRepo(pool)
	payments := repositories.NewPaymentRepo(pool)
	rates := repositories.NewRateRepo(pool)
	referrals := repositories.NewReferralRepo(pool)
	partners := repositories.NewPartnerRepo(pool)
	commissions := repositories.NewCommissionRepo(pool)
	audits := repositories.NewAuditRepo(pool)

	st := settings.NewReader(settings.NewPostgresStore(pool), settings.DefaultsFromConfig(cfg), log)

	rateCache := services.NewRateCache(
		rates,
		ratesource.NewFiatClient(cfg.FiatRatesURL, log),
		ratesource.NewTonAPIClient(cfg.TonAPIURL, cfg.TonAPIKey, log),
		st, log,
	)
	converter := services.NewConverter(rateCache, st, log)

	if transfers == nil {
		transfers = noTransfers{}
	}
	registry, err := BuildRegistry(ctx, cfg, repositories.NewProviderRepo(pool), transfers, log)
	if err != nil {
		return nil, err
	}

	notifier := services.NewEventNotifier(users, publisher, log)
	audit := services.NewAuditService(audits, log)
	ledger := services.NewLedgerService(wallets, tx, log)
	commissionSvc := services.NewCommissionService(referrals, partners, commissions, ledger, tx, st, publisher, notifier, log)
	ledger.SetDebitObserver(commissionSvc)

	return &Core{
		Users:       users,
		Payments:    payments,
		Settings:    st,
		Rates:       rateCache,
		Converter:   converter,
		Registry:    registry,
		Publisher:   publisher,
		Ledger:      ledger,
		Payment:     services.NewPaymentService(payments, ledger, converter, registry, st, tx, publisher, notifier, cfg.ProviderTimeout, log),
		Commissions: commissionSvc,
		Referrals:   services.NewReferralService(referrals, partners, log),
		Partners:    services.NewPartnerService(partners, audit, st, log),
		Audit:       audit,
	}, nil
}

type ProviderLister interface {
	ListEnabled(ctx context.Context) ([]models.PaymentProvider, error)
}

// BuildRegistry binds every enabled provider row to its adapter. Rows
// without credentials or without a known adapter are skipped.
func BuildRegistry(ctx context.Context, cfg *config.Config, rows ProviderLister, transfers tonpay.TransferSource, log *zap.Logger) (*providers.Registry, error) {
	enabled, err := rows.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}

	registry := providers.NewRegistry()
	for _, row := range enabled {
		switch row.ID {
		case cryptobot.ProviderID:
			if cfg.CryptoBotToken == "" {
				log.Warn("provider skipped, no token", zap.String("provider", row.ID))
				continue
			}
			registry.Register(row, cryptobot.New(cfg.CryptoBotBaseURL, cfg.CryptoBotToken, cfg.ProviderTimeout, log))
		case tonpay.ProviderID:
			if cfg.TONHotWalletAddress == "" {
				log.Warn("provider skipped, no hot wallet", zap.String("provider", row.ID))
				continue
			}
			registry.Register(row, tonpay.New(cfg.TONHotWalletAddress, transfers, log))
		default:
			log.Warn("no adapter for provider", zap.String("provider", row.ID))
			continue
		}
		log.Info("provider registered", zap.String("provider", row.ID))
	}
	return registry, nil
}

// ConnectHotWallet opens a lite client for the hot wallet. Callers treat an
// error as "TON unavailable" and keep running.
func ConnectHotWallet(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ton.Wallet, error) {
	if cfg.TONHotWalletAddress == "" {
		return nil, errors.New("TON_HOT_WALLET_ADDRESS is not set")
	}
	api, err := ton.Connect(ctx, ton.ConnectConfig{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		return nil, err
	}
	return ton.NewWallet(api, cfg.TONHotWalletAddress)
}
