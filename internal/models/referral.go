package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Partner statuses
const (
	PartnerStatusPending = "pending"
	PartnerStatusActive  = "active"
	PartnerStatusBlocked = "blocked"
)

func IsValidPartnerStatus(s string) bool {
	switch s {
	case PartnerStatusPending, PartnerStatusActive, PartnerStatusBlocked:
		return true
	}
	return false
}

// Referral is a directed edge referrer -> referred. One per referred user.
type Referral struct {
	ID              uuid.UUID       `json:"id"`
	ReferrerID      uuid.UUID       `json:"referrer_id"`
	ReferredID      uuid.UUID       `json:"referred_id"`
	Level           int             `json:"level"`
	PartnerID       *uuid.UUID      `json:"partner_id,omitempty"`
	TotalPayments   int             `json:"total_payments"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	FirstPaymentAt  *time.Time      `json:"first_payment_at,omitempty"`
	LastPaymentAt   *time.Time      `json:"last_payment_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Partner struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        string          `json:"status"`
	Level1Percent decimal.Decimal `json:"level1_percent"`
	TotalEarned   decimal.Decimal `json:"total_earned"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Partner) IsActive() bool {
	return p != nil && p.Status == PartnerStatusActive
}

// Commission is at most one per (debit entry, referrer).
type Commission struct {
	ID            uuid.UUID       `json:"id"`
	ReferralID    uuid.UUID       `json:"referral_id"`
	ReferrerID    uuid.UUID       `json:"referrer_id"`
	ReferredID    uuid.UUID       `json:"referred_id"`
	DebitEntryID  uuid.UUID       `json:"debit_entry_id"`
	CreditEntryID *uuid.UUID      `json:"credit_entry_id,omitempty"`
	Level         int             `json:"level"`
	Percent       decimal.Decimal `json:"percent"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	Amount        decimal.Decimal `json:"amount"`
	WalletKind    string          `json:"wallet_kind"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReferralSummary aggregates a referrer's edges.
type ReferralSummary struct {
	ReferredCount   int             `json:"referred_count"`
	PayingCount     int             `json:"paying_count"`
	TotalPayments   int             `json:"total_payments"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}
