package services

import "strings"

// LedgerCurrency is the internal unit of account.
const LedgerCurrency = "GTON"

// CurrencyClass decides which conversion path a currency takes.
type CurrencyClass int

const (
	ClassUnknown CurrencyClass = iota
	ClassLedger
	ClassUSD
	ClassStable
	ClassTON
	ClassCrypto
	ClassFiat
)

var stableCoins = map[string]bool{
	"USDT": true, "USDC": true, "DAI": true, "TUSD": true, "FDUSD": true,
}

// Volatile assets quoted as X->USD by the crypto source.
var cryptoAssets = map[string]bool{
	"BTC": true, "ETH": true, "BNB": true, "TRX": true, "LTC": true,
	"SOL": true, "NOT": true, "DOGS": true,
}

func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// Classify returns ClassUnknown for empty or malformed codes.
// Any other 3-letter alphabetic code is treated as fiat.
func Classify(currency string) CurrencyClass {
	c := NormalizeCurrency(currency)
	switch {
	case c == "":
		return ClassUnknown
	case c == LedgerCurrency:
		return ClassLedger
	case c == "USD":
		return ClassUSD
	case stableCoins[c]:
		return ClassStable
	case c == "TON":
		return ClassTON
	case cryptoAssets[c]:
		return ClassCrypto
	case len(c) == 3 && isAlpha(c):
		return ClassFiat
	}
	return ClassUnknown
}

// IsVolatile reports whether the currency uses the short crypto TTL.
func IsVolatile(currency string) bool {
	switch Classify(currency) {
	case ClassTON, ClassCrypto:
		return true
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
