package dto

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

type CreatePaymentRequest struct {
	AmountGTON string `json:"amount_gton"`
	Provider   string `json:"provider"`
	Currency   string `json:"currency,omitempty"` // provider default when empty
}

type AttachReferralRequest struct {
	ReferrerTelegramID int64 `json:"referrer_telegram_id"`
}

// Admin

type AdjustWalletRequest struct {
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"` // credit / debit
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type PromotePartnerRequest struct {
	UserID        string `json:"user_id"`
	Level1Percent string `json:"level1_percent"`
}

type SetPartnerStatusRequest struct {
	Status string `json:"status"`
}
