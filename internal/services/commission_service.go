package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReferralStore interface {
	Create(ctx context.Context, ref *models.Referral) error
	GetByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)
	AddCommission(ctx context.Context, q db.Querier, referralID uuid.UUID, amount decimal.Decimal) error
	Summary(ctx context.Context, referrerID uuid.UUID) (*models.ReferralSummary, error)
}

type PartnerStore interface {
	Upsert(ctx context.Context, userID uuid.UUID, level1Percent decimal.Decimal) (*models.Partner, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status string) (*models.Partner, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Partner, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	AddEarned(ctx context.Context, q db.Querier, partnerID uuid.UUID, amount decimal.Decimal) error
}

type CommissionStore interface {
	Insert(ctx context.Context, q db.Querier, c *models.Commission) (bool, error)
	SetCreditEntry(ctx context.Context, q db.Querier, id, creditEntryID uuid.UUID) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.Commission, error)
}

// CommissionService pays the referrer of a user whose main wallet was debited.
type CommissionService struct {
	referrals   ReferralStore
	partners    PartnerStore
	commissions CommissionStore
	ledger      *LedgerService
	tx          Transactor
	settings    *settings.Reader
	publisher   events.Publisher
	notifier    Notifier
	log         *zap.Logger
}

func NewCommissionService(
	referrals ReferralStore,
	partners PartnerStore,
	commissions CommissionStore,
	ledger *LedgerService,
	tx Transactor,
	st *settings.Reader,
	publisher events.Publisher,
	notifier Notifier,
	log *zap.Logger,
) *CommissionService {
	return &CommissionService{
		referrals:   referrals,
		partners:    partners,
		commissions: commissions,
		ledger:      ledger,
		tx:          tx,
		settings:    st,
		publisher:   publisher,
		notifier:    notifier,
		log:         log,
	}
}

// OnDebit runs after the debit committed. Returned errors are only logged by
// the ledger: the debit stands regardless.
func (s *CommissionService) OnDebit(ctx context.Context, ev DebitEvent) error {
	if ev.WalletKind != models.WalletKindMain {
		return nil
	}
	if !s.settings.Bool(ctx, settings.CommissionEnabled) {
		return nil
	}

	ref, err := s.referrals.GetByReferred(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup referral: %w", err)
	}

	pct := s.settings.Decimal(ctx, settings.ReferralLevel1Percent)
	kind := models.WalletKindMain
	var partner *models.Partner
	if ref.PartnerID != nil {
		p, err := s.partners.GetByID(ctx, *ref.PartnerID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("lookup partner: %w", err)
		}
		if p.IsActive() {
			partner = p
			pct = p.Level1Percent
			kind = models.WalletKindPartner
		}
	}

	amount := money.Floor(money.Percent(ev.Amount, pct))
	if !amount.IsPositive() {
		return nil
	}

	c := &models.Commission{
		ReferralID:   ref.ID,
		ReferrerID:   ref.ReferrerID,
		ReferredID:   ref.ReferredID,
		DebitEntryID: ev.EntryID,
		Level:        ref.Level,
		Percent:      pct,
		BaseAmount:   ev.Amount,
		Amount:       amount,
		WalletKind:   kind,
	}

	paid := false
	err = s.tx.InTx(ctx, func(q db.Querier) error {
		inserted, err := s.commissions.Insert(ctx, q, c)
		if err != nil {
			return fmt.Errorf("insert commission: %w", err)
		}
		if !inserted {
			return nil
		}

		res, err := s.ledger.CreditTx(ctx, q, CreditRequest{
			UserID:        ref.ReferrerID,
			Kind:          kind,
			Amount:        amount,
			Source:        models.SourceReferral,
			ReferenceType: "commission",
			ReferenceID:   &c.ID,
			Description:   fmt.Sprintf("%s%% of %s", pct.String(), money.String(ev.Amount)),
		})
		if err != nil {
			return err
		}
		c.CreditEntryID = &res.Entry.ID

		if err := s.commissions.SetCreditEntry(ctx, q, c.ID, res.Entry.ID); err != nil {
			return fmt.Errorf("link commission credit: %w", err)
		}
		if err := s.referrals.AddCommission(ctx, q, ref.ID, amount); err != nil {
			return fmt.Errorf("update referral totals: %w", err)
		}
		if partner != nil {
			if err := s.partners.AddEarned(ctx, q, partner.ID, amount); err != nil {
				return fmt.Errorf("update partner totals: %w", err)
			}
		}
		paid = true
		return nil
	})
	if err != nil {
		return err
	}
	if !paid {
		s.log.Debug("commission already paid", zap.String("debit_entry_id", ev.EntryID.String()))
		return nil
	}

	commissionsPaid.WithLabelValues(kind).Inc()
	s.log.Info("commission paid",
		zap.String("referrer_id", ref.ReferrerID.String()),
		zap.String("referred_id", ref.ReferredID.String()),
		zap.String("amount", amount.String()),
		zap.String("wallet_kind", kind),
	)

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.StreamWallet, events.Event{
			Type: events.EventCommissionPaid,
			Payload: map[string]any{
				"user_id":     ref.ReferrerID.String(),
				"amount_gton": money.String(amount),
				"wallet_kind": kind,
			},
		})
		if err != nil {
			s.log.Warn("failed to publish commission event", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, ref.ReferrerID, fmt.Sprintf("Referral commission: +%s %s", money.String(amount), LedgerCurrency))
	}
	return nil
}

func (s *CommissionService) ListForReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	return s.commissions.ListByReferrer(ctx, referrerID, limit, offset)
}
