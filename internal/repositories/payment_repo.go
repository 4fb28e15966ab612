package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
)

type PaymentRepo struct {
	db db.Querier
}

func NewPaymentRepo(q db.Querier) *PaymentRepo {
	return &PaymentRepo{db: q}
}

const paymentColumns = `id, user_id, reference, provider_id, external_id, pay_url,
	amount_gton, amount, currency, fee,
	rate_currency_usd, rate_ton_usd, rate_gton_ton, credited_gton,
	status, failure_reason, expires_at, completed_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.Reference, &p.ProviderID, &p.ExternalID, &p.PayURL,
		&p.AmountGTON, &p.Amount, &p.Currency, &p.Fee,
		&p.RateCurrencyUSD, &p.RateTonUSD, &p.RateGtonTon, &p.CreditedGTON,
		&p.Status, &p.FailureReason, &p.ExpiresAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (user_id, reference, provider_id, amount_gton, amount, currency, fee, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, created_at, updated_at
	`, p.UserID, p.Reference, p.ProviderID, p.AmountGTON, p.Amount, p.Currency, p.Fee, p.ExpiresAt,
	).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return mapErr(err)
}

// SetExternal stores what the provider returned for a freshly created invoice.
func (r *PaymentRepo) SetExternal(ctx context.Context, id uuid.UUID, externalID, payURL string, raw []byte) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payments SET external_id = $1, pay_url = $2, raw_response = $3, updated_at = now()
		WHERE id = $4
	`, externalID, payURL, raw, id)
	return mapErr(err)
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PaymentRepo) GetByExternalID(ctx context.Context, providerID, externalID string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE provider_id = $1 AND external_id = $2
	`, providerID, externalID))
}

func (r *PaymentRepo) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

// LockByID selects the payment FOR UPDATE inside the caller's transaction.
func (r *PaymentRepo) LockByID(ctx context.Context, q db.Querier, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// Complete freezes the settlement data. Returns false when the row was no longer pending.
func (r *PaymentRepo) Complete(ctx context.Context, q db.Querier, p *models.Payment) (bool, error) {
	err := q.QueryRow(ctx, `
		UPDATE payments SET
			status = 'completed',
			rate_currency_usd = $1, rate_ton_usd = $2, rate_gton_ton = $3,
			credited_gton = $4, completed_at = now(), updated_at = now()
		WHERE id = $5 AND status = 'pending'
		RETURNING completed_at, updated_at
	`, p.RateCurrencyUSD, p.RateTonUSD, p.RateGtonTon, p.CreditedGTON, p.ID,
	).Scan(&p.CompletedAt, &p.UpdatedAt)
	if err != nil {
		if mapErr(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	p.Status = models.PaymentStatusCompleted
	return true, nil
}

// MarkTerminal moves a pending payment to failed/expired. False when it was not pending.
func (r *PaymentRepo) MarkTerminal(ctx context.Context, id uuid.UUID, status string, reason *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = now()
		WHERE id = $3 AND status = 'pending'
	`, status, reason, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireOverdue bulk-expires pending payments past their deadline.
func (r *PaymentRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at < now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PaymentRepo) listPayments(ctx context.Context, sql string, args ...any) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ListPendingWithExternal returns oldest first, only payments the provider knows about.
func (r *PaymentRepo) ListPendingWithExternal(ctx context.Context, limit int) ([]models.Payment, error) {
	return r.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending' AND external_id IS NOT NULL
		ORDER BY created_at ASC LIMIT $1
	`, limit)
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return r.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}
