package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxChainWalk bounds the ancestor walk used for cycle detection.
const maxChainWalk = 64

type ReferralService struct {
	referrals ReferralStore
	partners  PartnerStore
	log       *zap.Logger
}

func NewReferralService(referrals ReferralStore, partners PartnerStore, log *zap.Logger) *ReferralService {
	return &ReferralService{referrals: referrals, partners: partners, log: log}
}

// Attach sets the referrer of referredID. A user's referrer is set once.
func (s *ReferralService) Attach(ctx context.Context, referredID, referrerID uuid.UUID) (*models.Referral, error) {
	if referredID == referrerID {
		return nil, ErrSelfReferral
	}

	if _, err := s.referrals.GetByReferred(ctx, referredID); err == nil {
		return nil, ErrAlreadyReferred
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	// walk up from the referrer; reaching referredID would close a cycle
	cur := referrerID
	for i := 0; i < maxChainWalk; i++ {
		up, err := s.referrals.GetByReferred(ctx, cur)
		if errors.Is(err, repositories.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if up.ReferrerID == referredID {
			return nil, fmt.Errorf("%w: referral cycle", ErrSelfReferral)
		}
		cur = up.ReferrerID
	}

	ref := &models.Referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Level:      1,
	}
	partner, err := s.partners.GetByUserID(ctx, referrerID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if partner.IsActive() {
		ref.PartnerID = &partner.ID
	}

	if err := s.referrals.Create(ctx, ref); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}

	s.log.Info("referral attached",
		zap.String("referrer_id", referrerID.String()),
		zap.String("referred_id", referredID.String()),
		zap.Bool("partner", ref.PartnerID != nil),
	)
	return ref, nil
}

func (s *ReferralService) Summary(ctx context.Context, userID uuid.UUID) (*models.ReferralSummary, error) {
	return s.referrals.Summary(ctx, userID)
}

type PartnerService struct {
	partners PartnerStore
	audit    AuditLogger
	settings *settings.Reader
	log      *zap.Logger
}

func NewPartnerService(partners PartnerStore, audit AuditLogger, st *settings.Reader, log *zap.Logger) *PartnerService {
	return &PartnerService{partners: partners, audit: audit, settings: st, log: log}
}

// Promote makes userID an active partner, reactivating a blocked one. A nil
// percent takes referral.partner_level1_percent.
func (s *PartnerService) Promote(ctx context.Context, adminID, userID uuid.UUID, percent *decimal.Decimal) (*models.Partner, error) {
	var level1Percent decimal.Decimal
	if percent != nil {
		level1Percent = *percent
	} else {
		level1Percent = s.settings.Decimal(ctx, settings.PartnerLevel1Percent)
	}
	if !level1Percent.IsPositive() || level1Percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPercent, level1Percent)
	}
	p, err := s.partners.Upsert(ctx, userID, level1Percent)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, adminID, models.AuditPartnerPromote, "partner", p.ID, map[string]any{
		"user_id":        userID.String(),
		"level1_percent": level1Percent.String(),
	})
	return p, nil
}

func (s *PartnerService) SetStatus(ctx context.Context, adminID, userID uuid.UUID, status string) (*models.Partner, error) {
	if !models.IsValidPartnerStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	p, err := s.partners.SetStatus(ctx, userID, status)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, err
	}
	s.audit.Record(ctx, adminID, models.AuditPartnerSetStatus, "partner", p.ID, map[string]any{"status": status})
	return p, nil
}

func (s *PartnerService) Get(ctx context.Context, userID uuid.UUID) (*models.Partner, error) {
	p, err := s.partners.GetByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPartnerNotFound
	}
	return p, err
}
