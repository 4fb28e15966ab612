package services

import (
	"context"
	"fmt"

	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Static USD prices used only when rates.crypto_fallback_enabled is set and
// the live quote is absent.
var cryptoFallbackUSD = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(60000),
	"ETH":  decimal.NewFromInt(3000),
	"BNB":  decimal.NewFromInt(550),
	"TRX":  decimal.RequireFromString("0.12"),
	"LTC":  decimal.NewFromInt(80),
	"SOL":  decimal.NewFromInt(150),
	"NOT":  decimal.RequireFromString("0.008"),
	"DOGS": decimal.RequireFromString("0.0007"),
}

type RateSource interface {
	GetRate(ctx context.Context, base, quote string) (decimal.Decimal, bool)
}

// Rates are the hop rates a conversion used. They are frozen on the payment
// at confirmation.
type Rates struct {
	CurrencyUSD decimal.Decimal `json:"currency_usd"` // 1 currency = x USD
	TonUSD      decimal.Decimal `json:"ton_usd"`      // 1 TON = x USD
	GtonTon     decimal.Decimal `json:"gton_ton"`     // 1 GTON = x TON
}

type Conversion struct {
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"` // currency side
	Ledger      decimal.Decimal `json:"ledger"` // GTON side, rounded to money.Scale
	USD         decimal.Decimal `json:"usd"`
	TON         decimal.Decimal `json:"ton"`
	Rates       Rates           `json:"rates"`
	Approximate bool            `json:"approximate"`
}

// Converter prices amounts along currency -> USD -> TON -> GTON. Every hop
// runs at money.WorkScale; only the final amount is rounded.
type Converter struct {
	rates    RateSource
	settings *settings.Reader
	log      *zap.Logger
}

func NewConverter(rates RateSource, st *settings.Reader, log *zap.Logger) *Converter {
	return &Converter{rates: rates, settings: st, log: log}
}

func (c *Converter) gtonTon(ctx context.Context) (decimal.Decimal, error) {
	r := c.settings.Decimal(ctx, settings.GtonTonRate)
	if !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/TON not configured", ErrRateUnavailable, LedgerCurrency)
	}
	return r, nil
}

func (c *Converter) tonUSD(ctx context.Context) (decimal.Decimal, error) {
	r, ok := c.rates.GetRate(ctx, "TON", "USD")
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: TON/USD", ErrRateUnavailable)
	}
	return r, nil
}

// currencyHop is the first hop of the chain for non-TON currencies.
type currencyHop struct {
	toUSD   decimal.Decimal // 1 currency = x USD
	usdFiat decimal.Decimal // 1 USD = x fiat, fiat class only
	approx  bool
}

func (c *Converter) currencyUSD(ctx context.Context, currency string, class CurrencyClass) (*currencyHop, error) {
	switch class {
	case ClassUSD, ClassStable:
		return &currencyHop{toUSD: money.One}, nil
	case ClassCrypto:
		if r, ok := c.rates.GetRate(ctx, currency, "USD"); ok {
			return &currencyHop{toUSD: r}, nil
		}
		if fb, ok := cryptoFallbackUSD[currency]; ok && c.settings.Bool(ctx, settings.CryptoFallbackEnabled) {
			rateFallbackUsed.WithLabelValues(currency).Inc()
			c.log.Warn("using fallback crypto rate", zap.String("currency", currency), zap.Bool("approximate", true))
			return &currencyHop{toUSD: fb, approx: true}, nil
		}
		return nil, fmt.Errorf("%w: %s/USD", ErrRateUnavailable, currency)
	case ClassFiat:
		usdFiat, ok := c.rates.GetRate(ctx, "USD", currency)
		if !ok {
			return nil, fmt.Errorf("%w: USD/%s", ErrRateUnavailable, currency)
		}
		r, err := money.Div(money.One, usdFiat)
		if err != nil {
			return nil, fmt.Errorf("%w: USD/%s is zero", ErrRateUnavailable, currency)
		}
		return &currencyHop{toUSD: r, usdFiat: usdFiat}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
}

// ToLedger converts `amount` of `currency` to GTON after deducting feePercent.
func (c *Converter) ToLedger(ctx context.Context, amount decimal.Decimal, currency string, feePercent decimal.Decimal) (*Conversion, error) {
	currency = NormalizeCurrency(currency)
	class := Classify(currency)
	if class == ClassUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if feePercent.IsNegative() || feePercent.GreaterThanOrEqual(money.Hundred) {
		return nil, fmt.Errorf("%w: fee percent %s", ErrInvalidAmount, feePercent)
	}

	net := amount.Sub(money.Percent(amount, feePercent))
	conv := &Conversion{Currency: currency, Amount: amount}

	if class == ClassLedger {
		conv.Ledger = money.Round(net)
		return conv, nil
	}

	gtonTon, err := c.gtonTon(ctx)
	if err != nil {
		return nil, err
	}
	conv.Rates.GtonTon = gtonTon

	var ton decimal.Decimal
	if class == ClassTON {
		ton = net
		if r, ok := c.rates.GetRate(ctx, "TON", "USD"); ok {
			conv.Rates.TonUSD = r
			conv.Rates.CurrencyUSD = r
			conv.USD = ton.Mul(r)
		}
	} else {
		hop, err := c.currencyUSD(ctx, currency, class)
		if err != nil {
			return nil, err
		}
		tonUSD, err := c.tonUSD(ctx)
		if err != nil {
			return nil, err
		}
		conv.Approximate = hop.approx
		conv.Rates.CurrencyUSD = hop.toUSD
		conv.Rates.TonUSD = tonUSD

		if class == ClassFiat {
			// divide by USD->fiat directly, not by its rounded inverse
			conv.USD, _ = money.Div(net, hop.usdFiat)
		} else {
			conv.USD = net.Mul(hop.toUSD)
		}
		ton, _ = money.Div(conv.USD, tonUSD)
	}

	conv.TON = ton
	ledger, _ := money.Div(ton, gtonTon)
	conv.Ledger = money.Round(ledger)
	return conv, nil
}

// FromLedger prices `ledgerAmount` GTON in `currency`, hop by hop in reverse.
func (c *Converter) FromLedger(ctx context.Context, ledgerAmount decimal.Decimal, currency string) (*Conversion, error) {
	currency = NormalizeCurrency(currency)
	class := Classify(currency)
	if class == ClassUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	if !ledgerAmount.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}

	conv := &Conversion{Currency: currency, Ledger: ledgerAmount}
	if class == ClassLedger {
		conv.Amount = money.Round(ledgerAmount)
		return conv, nil
	}

	gtonTon, err := c.gtonTon(ctx)
	if err != nil {
		return nil, err
	}
	conv.Rates.GtonTon = gtonTon
	conv.TON = ledgerAmount.Mul(gtonTon)

	if class == ClassTON {
		conv.Amount = money.Round(conv.TON)
		if r, ok := c.rates.GetRate(ctx, "TON", "USD"); ok {
			conv.Rates.TonUSD = r
			conv.Rates.CurrencyUSD = r
			conv.USD = conv.TON.Mul(r)
		}
		return conv, nil
	}

	tonUSD, err := c.tonUSD(ctx)
	if err != nil {
		return nil, err
	}
	hop, err := c.currencyUSD(ctx, currency, class)
	if err != nil {
		return nil, err
	}
	conv.Approximate = hop.approx
	conv.Rates.TonUSD = tonUSD
	conv.Rates.CurrencyUSD = hop.toUSD
	conv.USD = conv.TON.Mul(tonUSD)

	var amount decimal.Decimal
	switch class {
	case ClassUSD, ClassStable:
		amount = conv.USD
	case ClassCrypto:
		amount, _ = money.Div(conv.USD, hop.toUSD)
	case ClassFiat:
		amount = conv.USD.Mul(hop.usdFiat)
	}
	conv.Amount = money.Round(amount)
	return conv, nil
}
