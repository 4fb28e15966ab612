package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
	"github.com/shopspring/decimal"
)

type ReferralRepo struct {
	db db.Querier
}

func NewReferralRepo(q db.Querier) *ReferralRepo {
	return &ReferralRepo{db: q}
}

const referralColumns = `id, referrer_id, referred_id, level, partner_id, total_payments, total_commission,
	first_payment_at, last_payment_at, created_at`

func scanReferral(row interface{ Scan(...any) error }) (*models.Referral, error) {
	var ref models.Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Level, &ref.PartnerID,
		&ref.TotalPayments, &ref.TotalCommission, &ref.FirstPaymentAt, &ref.LastPaymentAt, &ref.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ref, nil
}

// Create inserts the edge. ErrDuplicate when the referred user already has one.
func (r *ReferralRepo) Create(ctx context.Context, ref *models.Referral) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, level, partner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, total_payments, total_commission, created_at
	`, ref.ReferrerID, ref.ReferredID, ref.Level, ref.PartnerID,
	).Scan(&ref.ID, &ref.TotalPayments, &ref.TotalCommission, &ref.CreatedAt)
	return mapErr(err)
}

func (r *ReferralRepo) GetByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	return scanReferral(r.db.QueryRow(ctx, `
		SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1
	`, referredID))
}

// AddCommission bumps the per-edge totals after a commission was paid.
func (r *ReferralRepo) AddCommission(ctx context.Context, q db.Querier, referralID uuid.UUID, amount decimal.Decimal) error {
	_, err := q.Exec(ctx, `
		UPDATE referrals SET
			total_payments = total_payments + 1,
			total_commission = total_commission + $1,
			first_payment_at = COALESCE(first_payment_at, now()),
			last_payment_at = now()
		WHERE id = $2
	`, amount, referralID)
	return err
}

func (r *ReferralRepo) Summary(ctx context.Context, referrerID uuid.UUID) (*models.ReferralSummary, error) {
	var s models.ReferralSummary
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE total_payments > 0),
		       COALESCE(SUM(total_payments), 0),
		       COALESCE(SUM(total_commission), 0)
		FROM referrals WHERE referrer_id = $1
	`, referrerID).Scan(&s.ReferredCount, &s.PayingCount, &s.TotalPayments, &s.TotalCommission)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
