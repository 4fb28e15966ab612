package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is 1 Base = Rate Quote. Unique per (base, quote).
type ExchangeRate struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
}
