// Package providers defines the payment provider contract and the adapters
// registered at startup.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the provider-side state of an invoice, normalized.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

var (
	ErrWebhookRejected     = errors.New("webhook rejected")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrUnsupportedCurrency = errors.New("currency not supported by provider")
	ErrProviderRequest     = errors.New("provider request failed")
)

type CreateRequest struct {
	PaymentID   uuid.UUID
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpiresIn   time.Duration
}

type Invoice struct {
	ExternalID string
	PayURL     string
	Raw        []byte
}

type WebhookResult struct {
	ExternalID string
	Status     Status
}

// Adapter is one per external payment provider.
type Adapter interface {
	ID() string
	Currencies() []string
	DefaultCurrency() string
	CreatePayment(ctx context.Context, req CreateRequest) (*Invoice, error)
	// CheckPayment never errors: transient failures are reported as StatusPending.
	CheckPayment(ctx context.Context, externalID string) Status
}

// WebhookHandler is implemented by adapters that receive push notifications.
type WebhookHandler interface {
	HandleWebhook(payload []byte, headers map[string]string) (*WebhookResult, error)
}
