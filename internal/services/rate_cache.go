package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/ratesource"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type RateStore interface {
	Get(ctx context.Context, base, quote string) (*models.ExchangeRate, error)
	Upsert(ctx context.Context, rates []models.ExchangeRate) error
}

type FiatSource interface {
	FetchUSDRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

type CryptoSource interface {
	FetchUSDPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// RateCache serves exchange rates from the exchange_rates table and refills
// it from the upstream sources on a miss. Stale rows are never returned.
//
// Canonical pairs: USD->fiat (fiat source) and X->USD (crypto source).
type RateCache struct {
	store    RateStore
	fiat     FiatSource
	crypto   CryptoSource
	settings *settings.Reader
	log      *zap.Logger
	now      func() time.Time

	// misses collapses concurrent refreshes of the same table or symbol
	misses   singleflight.Group
	fiatMu   sync.Mutex
	cryptoMu sync.Mutex
}

func NewRateCache(store RateStore, fiat FiatSource, crypto CryptoSource, st *settings.Reader, log *zap.Logger) *RateCache {
	return &RateCache{
		store:    store,
		fiat:     fiat,
		crypto:   crypto,
		settings: st,
		log:      log,
		now:      time.Now,
	}
}

// GetRate returns how many `quote` one `base` is worth.
func (c *RateCache) GetRate(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	base, quote = NormalizeCurrency(base), NormalizeCurrency(quote)
	if base == "" || quote == "" {
		return decimal.Zero, false
	}
	if base == quote {
		return money.One, true
	}
	if (base == "USD" && stableCoins[quote]) || (quote == "USD" && stableCoins[base]) {
		return money.One, true
	}

	switch {
	case base == "USD" && Classify(quote) == ClassFiat:
		return c.canonical(ctx, base, quote)
	case quote == "USD" && IsVolatile(base):
		return c.canonical(ctx, base, quote)
	case quote == "USD" && Classify(base) == ClassFiat:
		return c.inverted(ctx, quote, base)
	case base == "USD" && IsVolatile(quote):
		return c.inverted(ctx, quote, base)
	}
	return decimal.Zero, false
}

func (c *RateCache) inverted(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	r, ok := c.canonical(ctx, base, quote)
	if !ok {
		return decimal.Zero, false
	}
	inv, err := money.Div(money.One, r)
	if err != nil {
		return decimal.Zero, false
	}
	return inv, true
}

func (c *RateCache) ttl(ctx context.Context, base, quote string) time.Duration {
	if IsVolatile(base) || IsVolatile(quote) {
		return c.settings.Minutes(ctx, settings.CryptoTTLMinutes)
	}
	return c.settings.Minutes(ctx, settings.FiatTTLMinutes)
}

func (c *RateCache) fresh(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	er, err := c.store.Get(ctx, base, quote)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			c.log.Warn("rate lookup failed", zap.String("pair", base+"/"+quote), zap.Error(err))
		}
		return decimal.Zero, false
	}
	if c.now().Sub(er.UpdatedAt) >= c.ttl(ctx, base, quote) || !er.Rate.IsPositive() {
		return decimal.Zero, false
	}
	return er.Rate, true
}

func (c *RateCache) canonical(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	if r, ok := c.fresh(ctx, base, quote); ok {
		return r, true
	}

	key := "fiat"
	if base != "USD" {
		key = "crypto:" + base
	}
	_, err, _ := c.misses.Do(key, func() (any, error) {
		// a caller that missed just before the previous refresh finished
		if _, ok := c.fresh(ctx, base, quote); ok {
			return nil, nil
		}
		if base == "USD" {
			return nil, c.refreshFiat(ctx)
		}
		return nil, c.refreshCrypto(ctx, []string{base})
	})
	if err != nil {
		return decimal.Zero, false
	}
	return c.fresh(ctx, base, quote)
}

// refreshFiat pulls the full USD table. The mutex keeps Prewarm and a miss
// from fetching at the same time.
func (c *RateCache) refreshFiat(ctx context.Context) error {
	c.fiatMu.Lock()
	defer c.fiatMu.Unlock()

	rates, err := c.fiat.FetchUSDRates(ctx)
	if err != nil {
		rateFetchFailures.WithLabelValues(ratesource.SourceFiat).Inc()
		c.log.Warn("fiat rate fetch failed", zap.Error(err))
		return err
	}

	rows := make([]models.ExchangeRate, 0, len(rates))
	for code, r := range rates {
		if code == "USD" {
			continue
		}
		rows = append(rows, models.ExchangeRate{Base: "USD", Quote: code, Rate: r, Source: ratesource.SourceFiat, UpdatedAt: c.now()})
	}
	if err := c.store.Upsert(ctx, rows); err != nil {
		c.log.Error("failed to persist fiat rates", zap.Error(err))
		return err
	}
	c.log.Info("fiat rates refreshed", zap.Int("count", len(rows)))
	return nil
}

func (c *RateCache) refreshCrypto(ctx context.Context, symbols []string) error {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()

	prices, err := c.crypto.FetchUSDPrices(ctx, symbols)
	if err != nil {
		rateFetchFailures.WithLabelValues(ratesource.SourceTonAPI).Inc()
		c.log.Warn("crypto rate fetch failed", zap.Strings("symbols", symbols), zap.Error(err))
		return err
	}

	rows := make([]models.ExchangeRate, 0, len(prices))
	for sym, p := range prices {
		rows = append(rows, models.ExchangeRate{Base: sym, Quote: "USD", Rate: p, Source: ratesource.SourceTonAPI, UpdatedAt: c.now()})
	}
	if len(rows) == 0 {
		rateFetchFailures.WithLabelValues(ratesource.SourceTonAPI).Inc()
		return ErrRateUnavailable
	}
	return c.store.Upsert(ctx, rows)
}

// Prewarm keeps the tables warm until ctx is cancelled: fiat on fiatEvery,
// the listed volatile symbols on cryptoEvery.
func (c *RateCache) Prewarm(ctx context.Context, symbols []string, fiatEvery, cryptoEvery time.Duration) {
	_ = c.refreshFiat(ctx)
	if len(symbols) > 0 {
		_ = c.refreshCrypto(ctx, symbols)
	}

	fiatTicker := time.NewTicker(fiatEvery)
	defer fiatTicker.Stop()
	cryptoTicker := time.NewTicker(cryptoEvery)
	defer cryptoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fiatTicker.C:
			_ = c.refreshFiat(ctx)
		case <-cryptoTicker.C:
			if len(symbols) > 0 {
				_ = c.refreshCrypto(ctx, symbols)
			}
		}
	}
}
