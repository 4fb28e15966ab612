package repositories

import (
	"context"

	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
)

type ProviderRepo struct {
	db db.Querier
}

func NewProviderRepo(q db.Querier) *ProviderRepo {
	return &ProviderRepo{db: q}
}

func (r *ProviderRepo) ListEnabled(ctx context.Context) ([]models.PaymentProvider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, enabled, fee_percent, default_currency, currencies, sort_order
		FROM payment_providers WHERE enabled = true
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.PaymentProvider
	for rows.Next() {
		var p models.PaymentProvider
		if err := rows.Scan(&p.ID, &p.Title, &p.Enabled, &p.FeePercent, &p.DefaultCurrency, &p.Currencies, &p.SortOrder); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
