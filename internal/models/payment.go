package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusExpired   = "expired"
)

// Valid state transitions: from -> []to. Terminal states have no outgoing edges.
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusCompleted: {},
	PaymentStatusFailed:    {},
	PaymentStatusExpired:   {},
}

func IsValidPaymentTransition(from, to string) bool {
	allowed, ok := ValidPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalPaymentStatus(status string) bool {
	allowed, ok := ValidPaymentTransitions[status]
	return ok && len(allowed) == 0
}

type Payment struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Reference  string    `json:"reference"` // ULID, used as invoice payload / TON memo
	ProviderID string    `json:"provider_id"`
	ExternalID *string   `json:"external_id,omitempty"`
	PayURL     *string   `json:"pay_url,omitempty"`

	AmountGTON decimal.Decimal `json:"amount_gton"` // requested ledger amount
	Amount     decimal.Decimal `json:"amount"`      // in Currency, fee included
	Currency   string          `json:"currency"`
	Fee        decimal.Decimal `json:"fee"`

	// Rates frozen at confirmation (nil while pending)
	RateCurrencyUSD *decimal.Decimal `json:"rate_currency_usd,omitempty"`
	RateTonUSD      *decimal.Decimal `json:"rate_ton_usd,omitempty"`
	RateGtonTon     *decimal.Decimal `json:"rate_gton_ton,omitempty"`
	CreditedGTON    *decimal.Decimal `json:"credited_gton,omitempty"`

	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RawResponse   []byte     `json:"-"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PaymentProvider is a static provider config row.
type PaymentProvider struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Enabled         bool            `json:"enabled"`
	FeePercent      decimal.Decimal `json:"fee_percent"`
	DefaultCurrency string          `json:"default_currency"`
	Currencies      []string        `json:"currencies"`
	SortOrder       int             `json:"sort_order"`
}
