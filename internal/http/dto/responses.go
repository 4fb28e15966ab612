package dto

import "github.com/gton-market/settlement/internal/models"

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type CreatePaymentResponse struct {
	Payment *models.Payment `json:"payment"`
	PayURL  string          `json:"pay_url"`
}

type ConfirmPaymentResponse struct {
	Payment  *models.Payment `json:"payment"`
	Credited bool            `json:"credited"`
}

type ChainReportResponse struct {
	WalletID string   `json:"wallet_id"`
	Entries  int      `json:"entries"`
	OK       bool     `json:"ok"`
	Breaks   []string `json:"breaks,omitempty"`
}
