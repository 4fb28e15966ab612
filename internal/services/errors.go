package services

import "errors"

var (
	// Conversion
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Ledger
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidWalletKind   = errors.New("invalid wallet kind")
	ErrInvalidSource       = errors.New("invalid ledger source")
	ErrWalletNotFound      = errors.New("wallet not found")

	// Payments
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAmountTooSmall  = errors.New("amount below minimum deposit")
	ErrAmountTooLarge  = errors.New("amount above maximum deposit")
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrProviderFailed  = errors.New("payment provider failed")

	// Referrals
	ErrSelfReferral    = errors.New("user cannot refer themselves")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrPartnerNotFound = errors.New("partner not found")
	ErrInvalidPercent  = errors.New("percent must be in (0, 100]")
	ErrInvalidStatus   = errors.New("invalid status")
)
