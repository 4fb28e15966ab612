package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
	"github.com/shopspring/decimal"
)

type PartnerRepo struct {
	db db.Querier
}

func NewPartnerRepo(q db.Querier) *PartnerRepo {
	return &PartnerRepo{db: q}
}

const partnerColumns = `id, user_id, status, level1_percent, total_earned, created_at, updated_at`

func scanPartner(row interface{ Scan(...any) error }) (*models.Partner, error) {
	var p models.Partner
	if err := row.Scan(&p.ID, &p.UserID, &p.Status, &p.Level1Percent, &p.TotalEarned, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// Upsert promotes a user to partner. An existing partner gets the new percent
// and is set back to active.
func (r *PartnerRepo) Upsert(ctx context.Context, userID uuid.UUID, level1Percent decimal.Decimal) (*models.Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `
		INSERT INTO partners (user_id, status, level1_percent)
		VALUES ($1, 'active', $2)
		ON CONFLICT (user_id) DO UPDATE SET
			level1_percent = EXCLUDED.level1_percent,
			status = 'active',
			updated_at = now()
		RETURNING `+partnerColumns,
		userID, level1Percent))
}

func (r *PartnerRepo) SetStatus(ctx context.Context, userID uuid.UUID, status string) (*models.Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `
		UPDATE partners SET status = $1, updated_at = now()
		WHERE user_id = $2
		RETURNING `+partnerColumns,
		status, userID))
}

func (r *PartnerRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE user_id = $1`, userID))
}

func (r *PartnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
}

func (r *PartnerRepo) AddEarned(ctx context.Context, q db.Querier, partnerID uuid.UUID, amount decimal.Decimal) error {
	_, err := q.Exec(ctx, `
		UPDATE partners SET total_earned = total_earned + $1, updated_at = now()
		WHERE id = $2
	`, amount, partnerID)
	return err
}
