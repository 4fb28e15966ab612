package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet kinds
const (
	WalletKindMain    = "main"
	WalletKindBonus   = "bonus"
	WalletKindPartner = "partner"
)

// Ledger entry sources
const (
	SourcePayment  = "payment"
	SourceReferral = "referral"
	SourceBonus    = "bonus"
	SourceAdmin    = "admin"
	SourceService  = "service"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

func IsValidWalletKind(kind string) bool {
	switch kind {
	case WalletKindMain, WalletKindBonus, WalletKindPartner:
		return true
	}
	return false
}

func IsValidSource(source string) bool {
	switch source {
	case SourcePayment, SourceReferral, SourceBonus, SourceAdmin, SourceService:
		return true
	}
	return false
}

// Wallet is a balance holder, one per (user, kind).
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Kind      string          `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	Frozen    decimal.Decimal `json:"frozen"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Available is the part of the balance that can be debited.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Frozen)
}

// LedgerEntry is append-only; amount is always positive, direction carries the sign.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Source        string          `json:"source"`
	ReferenceType *string         `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID      `json:"reference_id,omitempty"`
	Description   *string         `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns +amount for credits and -amount for debits.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
