package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/providers"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Confirmation paths, used as metric labels.
const (
	PathWebhook   = "webhook"
	PathReconcile = "reconcile"
	PathIndexer   = "indexer"
	PathAdmin     = "admin"
)

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	SetExternal(ctx context.Context, id uuid.UUID, externalID, payURL string, raw []byte) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByExternalID(ctx context.Context, providerID, externalID string) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	LockByID(ctx context.Context, q db.Querier, id uuid.UUID) (*models.Payment, error)
	Complete(ctx context.Context, q db.Querier, p *models.Payment) (bool, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, status string, reason *string) (bool, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	ListPendingWithExternal(ctx context.Context, limit int) ([]models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
}

type CreateResult struct {
	Payment *models.Payment `json:"payment"`
	PayURL  string          `json:"pay_url"`
}

type ConfirmResult struct {
	Payment  *models.Payment `json:"payment"`
	Credited bool            `json:"credited"`
}

// PaymentService drives a payment from creation to exactly one terminal state.
type PaymentService struct {
	payments        PaymentStore
	ledger          *LedgerService
	converter       *Converter
	registry        *providers.Registry
	settings        *settings.Reader
	tx              Transactor
	publisher       events.Publisher
	notifier        Notifier
	providerTimeout time.Duration
	log             *zap.Logger
	now             func() time.Time
}

func NewPaymentService(
	payments PaymentStore,
	ledger *LedgerService,
	converter *Converter,
	registry *providers.Registry,
	st *settings.Reader,
	tx Transactor,
	publisher events.Publisher,
	notifier Notifier,
	providerTimeout time.Duration,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments:        payments,
		ledger:          ledger,
		converter:       converter,
		registry:        registry,
		settings:        st,
		tx:              tx,
		publisher:       publisher,
		notifier:        notifier,
		providerTimeout: providerTimeout,
		log:             log,
		now:             time.Now,
	}
}

// Create prices amountGTON in the payment currency, adds provider and
// platform fees, stores a pending payment and opens the provider invoice.
func (s *PaymentService) Create(ctx context.Context, userID uuid.UUID, amountGTON decimal.Decimal, providerID, currency string) (*CreateResult, error) {
	amountGTON = money.Round(amountGTON)
	if !amountGTON.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if min := s.settings.Decimal(ctx, settings.MinDeposit); amountGTON.LessThan(min) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrAmountTooSmall, min)
	}
	if max := s.settings.Decimal(ctx, settings.MaxDeposit); max.IsPositive() && amountGTON.GreaterThan(max) {
		return nil, fmt.Errorf("%w: maximum is %s", ErrAmountTooLarge, max)
	}

	adapter, cfg, ok := s.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	currency = NormalizeCurrency(currency)
	if currency == "" {
		currency = cfg.DefaultCurrency
	}
	if !s.registry.Supports(providerID, currency) {
		return nil, fmt.Errorf("%w: %s via %s", ErrUnsupportedCurrency, currency, providerID)
	}

	conv, err := s.converter.FromLedger(ctx, amountGTON, currency)
	if err != nil {
		return nil, err
	}

	feePct := cfg.FeePercent.Add(s.settings.Decimal(ctx, settings.FeePercent))
	if feePct.IsNegative() || feePct.GreaterThanOrEqual(money.Hundred) {
		return nil, fmt.Errorf("%w: total fee percent %s", ErrInvalidAmount, feePct)
	}
	// gross - gross*fee% = net
	gross, _ := money.Div(conv.Amount, money.One.Sub(feePct.Div(money.Hundred)))
	gross = money.Round(gross)
	fee := gross.Sub(conv.Amount)

	p := &models.Payment{
		UserID:     userID,
		Reference:  ulid.Make().String(),
		ProviderID: cfg.ID,
		AmountGTON: amountGTON,
		Amount:     gross,
		Currency:   currency,
		Fee:        fee,
		ExpiresAt:  s.now().Add(s.settings.Minutes(ctx, settings.TimeoutMinutes)),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	inv, err := adapter.CreatePayment(pctx, providers.CreateRequest{
		PaymentID:   p.ID,
		Reference:   p.Reference,
		Amount:      gross,
		Currency:    currency,
		Description: fmt.Sprintf("%s %s", money.String(amountGTON), LedgerCurrency),
		ExpiresIn:   p.ExpiresAt.Sub(s.now()),
	})
	if err != nil {
		reason := err.Error()
		if _, ferr := s.payments.MarkTerminal(ctx, p.ID, models.PaymentStatusFailed, &reason); ferr != nil {
			s.log.Error("failed to mark payment failed", zap.String("payment_id", p.ID.String()), zap.Error(ferr))
		}
		p.Status = models.PaymentStatusFailed
		p.FailureReason = &reason
		s.log.Warn("provider rejected payment",
			zap.String("payment_id", p.ID.String()),
			zap.String("provider", cfg.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if err := s.payments.SetExternal(ctx, p.ID, inv.ExternalID, inv.PayURL, inv.Raw); err != nil {
		return nil, fmt.Errorf("store provider invoice: %w", err)
	}
	p.ExternalID = &inv.ExternalID
	p.PayURL = &inv.PayURL

	s.log.Info("payment created",
		zap.String("payment_id", p.ID.String()),
		zap.String("provider", cfg.ID),
		zap.String("amount", gross.String()),
		zap.String("currency", currency),
		zap.String("amount_gton", amountGTON.String()),
	)
	return &CreateResult{Payment: p, PayURL: inv.PayURL}, nil
}

// Confirm settles a pending payment exactly once. A non-pending payment
// returns Credited=false without error. When no rate is available the
// payment stays pending and ErrRateUnavailable is returned.
func (s *PaymentService) Confirm(ctx context.Context, id uuid.UUID, path string) (*ConfirmResult, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return &ConfirmResult{Payment: p, Credited: false}, nil
	}

	// priced outside the transaction: no lock is held across rate fetches
	conv, err := s.converter.ToLedger(ctx, p.Amount.Sub(p.Fee), p.Currency, decimal.Zero)
	if err != nil {
		s.log.Warn("payment confirmation deferred",
			zap.String("payment_id", p.ID.String()),
			zap.String("currency", p.Currency),
			zap.Error(err),
		)
		return nil, err
	}

	credited := false
	err = s.tx.InTx(ctx, func(q db.Querier) error {
		locked, err := s.payments.LockByID(ctx, q, id)
		if err != nil {
			return err
		}
		p = locked
		if locked.Status != models.PaymentStatusPending {
			return nil
		}

		locked.RateCurrencyUSD = ratePtr(conv.Rates.CurrencyUSD)
		locked.RateTonUSD = ratePtr(conv.Rates.TonUSD)
		locked.RateGtonTon = ratePtr(conv.Rates.GtonTon)
		locked.CreditedGTON = &conv.Ledger

		ok, err := s.payments.Complete(ctx, q, locked)
		if err != nil || !ok {
			return err
		}

		_, err = s.ledger.CreditTx(ctx, q, CreditRequest{
			UserID:        locked.UserID,
			Kind:          models.WalletKindMain,
			Amount:        conv.Ledger,
			Source:        models.SourcePayment,
			ReferenceType: "payment",
			ReferenceID:   &locked.ID,
			Description:   fmt.Sprintf("%s %s via %s", money.String(locked.Amount), locked.Currency, locked.ProviderID),
		})
		if err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", id, err)
	}

	if credited {
		paymentsSettled.WithLabelValues(path).Inc()
		s.log.Info("payment completed",
			zap.String("payment_id", p.ID.String()),
			zap.String("path", path),
			zap.String("credited_gton", conv.Ledger.String()),
			zap.Bool("approximate", conv.Approximate),
		)
		s.afterCredit(ctx, p, conv.Ledger)
	}
	return &ConfirmResult{Payment: p, Credited: credited}, nil
}

// ratePtr leaves hops the conversion did not use as NULL.
func ratePtr(d decimal.Decimal) *decimal.Decimal {
	if !d.IsPositive() {
		return nil
	}
	return &d
}

func (s *PaymentService) afterCredit(ctx context.Context, p *models.Payment, credited decimal.Decimal) {
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.StreamWallet, events.Event{
			Type: events.EventPaymentCompleted,
			Payload: map[string]any{
				"user_id":     p.UserID.String(),
				"payment_id":  p.ID.String(),
				"amount_gton": money.String(credited),
				"provider":    p.ProviderID,
			},
		})
		if err != nil {
			s.log.Warn("failed to publish payment event", zap.String("payment_id", p.ID.String()), zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, p.UserID, fmt.Sprintf("Payment received: +%s %s", money.String(credited), LedgerCurrency))
	}
}

// ConfirmByExternalID is the entry point for provider pushes.
func (s *PaymentService) ConfirmByExternalID(ctx context.Context, providerID, externalID, path string) (*ConfirmResult, error) {
	p, err := s.payments.GetByExternalID(ctx, providerID, externalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return s.Confirm(ctx, p.ID, path)
}

// ConfirmByReference matches a payment by the memo carried in a transfer.
func (s *PaymentService) ConfirmByReference(ctx context.Context, reference, path string) (*ConfirmResult, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return s.Confirm(ctx, p.ID, path)
}

// GetByReference is used by the TON indexer to check the expected amount.
func (s *PaymentService) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// Fail moves a pending payment to failed. False when it was already terminal.
func (s *PaymentService) Fail(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	ok, err := s.payments.MarkTerminal(ctx, id, models.PaymentStatusFailed, &reason)
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Info("payment failed", zap.String("payment_id", id.String()), zap.String("reason", reason))
	}
	return ok, nil
}

func (s *PaymentService) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.payments.MarkTerminal(ctx, id, models.PaymentStatusExpired, nil)
	if err != nil {
		return false, err
	}
	if ok {
		paymentsExpired.Inc()
		s.log.Info("payment expired", zap.String("payment_id", id.String()))
	}
	return ok, nil
}

// ExpireSweep expires every pending payment past expires_at.
func (s *PaymentService) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := s.payments.ExpireOverdue(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		paymentsExpired.Add(float64(n))
		s.log.Info("expired overdue payments", zap.Int64("count", n))
	}
	return n, nil
}

// Get returns the payment only to its owner.
func (s *PaymentService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *PaymentService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	return s.payments.ListByUser(ctx, userID, limit, offset)
}

// HandleWebhook verifies a provider push and applies the reported status.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerID string, payload []byte, headers map[string]string) (*providers.WebhookResult, error) {
	adapter, _, ok := s.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	wh, ok := adapter.(providers.WebhookHandler)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not accept webhooks", ErrUnknownProvider, providerID)
	}

	res, err := wh.HandleWebhook(payload, headers)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case providers.StatusCompleted:
		_, err = s.ConfirmByExternalID(ctx, providerID, res.ExternalID, PathWebhook)
	case providers.StatusExpired, providers.StatusFailed:
		var p *models.Payment
		p, err = s.payments.GetByExternalID(ctx, providerID, res.ExternalID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return res, ErrPaymentNotFound
			}
			return res, err
		}
		if res.Status == providers.StatusExpired {
			_, err = s.Expire(ctx, p.ID)
		} else {
			_, err = s.Fail(ctx, p.ID, "provider reported failure")
		}
	}
	return res, err
}
