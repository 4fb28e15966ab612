package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
)

type CommissionRepo struct {
	db db.Querier
}

func NewCommissionRepo(q db.Querier) *CommissionRepo {
	return &CommissionRepo{db: q}
}

// Insert records the commission once per (debit entry, referrer).
// Returns false without error when it already exists.
func (r *CommissionRepo) Insert(ctx context.Context, q db.Querier, c *models.Commission) (bool, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO commissions (
			referral_id, referrer_id, referred_id, debit_entry_id, level,
			percent, base_amount, amount, wallet_kind
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (debit_entry_id, referrer_id) DO NOTHING
		RETURNING id, created_at
	`, c.ReferralID, c.ReferrerID, c.ReferredID, c.DebitEntryID, c.Level,
		c.Percent, c.BaseAmount, c.Amount, c.WalletKind,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if mapErr(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *CommissionRepo) SetCreditEntry(ctx context.Context, q db.Querier, id, creditEntryID uuid.UUID) error {
	_, err := q.Exec(ctx, `UPDATE commissions SET credit_entry_id = $1 WHERE id = $2`, creditEntryID, id)
	return err
}

func (r *CommissionRepo) ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, referral_id, referrer_id, referred_id, debit_entry_id, credit_entry_id, level,
		       percent, base_amount, amount, wallet_kind, created_at
		FROM commissions WHERE referrer_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Commission
	for rows.Next() {
		var c models.Commission
		if err := rows.Scan(&c.ID, &c.ReferralID, &c.ReferrerID, &c.ReferredID, &c.DebitEntryID, &c.CreditEntryID, &c.Level,
			&c.Percent, &c.BaseAmount, &c.Amount, &c.WalletKind, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
