package repositories

import (
	"context"
	"time"

	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
)

type RateRepo struct {
	db db.Querier
}

func NewRateRepo(q db.Querier) *RateRepo {
	return &RateRepo{db: q}
}

func (r *RateRepo) Get(ctx context.Context, base, quote string) (*models.ExchangeRate, error) {
	var er models.ExchangeRate
	err := r.db.QueryRow(ctx, `
		SELECT base, quote, rate, source, updated_at
		FROM exchange_rates WHERE base = $1 AND quote = $2
	`, base, quote).Scan(&er.Base, &er.Quote, &er.Rate, &er.Source, &er.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &er, nil
}

// Upsert writes the whole fetched table. updated_at is the caller's fetch
// time, so freshness is judged against the same clock that stamped it.
func (r *RateRepo) Upsert(ctx context.Context, rates []models.ExchangeRate) error {
	for _, er := range rates {
		fetchedAt := er.UpdatedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now()
		}
		_, err := r.db.Exec(ctx, `
			INSERT INTO exchange_rates (base, quote, rate, source, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (base, quote) DO UPDATE SET
				rate = EXCLUDED.rate,
				source = EXCLUDED.source,
				updated_at = EXCLUDED.updated_at
		`, er.Base, er.Quote, er.Rate, er.Source, fetchedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
