package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/gton-market/settlement/internal/models"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRateRepo(mock)
	ctx := context.Background()
	updated := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`SELECT base, quote, rate, source, updated_at`).
		WithArgs("USD", "RUB").
		WillReturnRows(pgxmock.NewRows([]string{"base", "quote", "rate", "source", "updated_at"}).
			AddRow("USD", "RUB", decimal.RequireFromString("92.5"), "open.er-api", updated))

	er, err := repo.Get(ctx, "USD", "RUB")
	require.NoError(t, err)
	assert.True(t, er.Rate.Equal(decimal.RequireFromString("92.5")))
	assert.Equal(t, updated, er.UpdatedAt)

	mock.ExpectQuery(`SELECT base, quote, rate, source, updated_at`).
		WithArgs("USD", "XXX").
		WillReturnRows(pgxmock.NewRows([]string{"base", "quote", "rate", "source", "updated_at"}))

	_, err = repo.Get(ctx, "USD", "XXX")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO exchange_rates`).
		WithArgs("USD", "EUR", pgxmock.AnyArg(), "open.er-api", fetchedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`updated_at = EXCLUDED.updated_at`).
		WithArgs("USD", "RUB", pgxmock.AnyArg(), "open.er-api", fetchedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewRateRepo(mock).Upsert(context.Background(), []models.ExchangeRate{
		{Base: "USD", Quote: "EUR", Rate: decimal.RequireFromString("0.92"), Source: "open.er-api", UpdatedAt: fetchedAt},
		{Base: "USD", Quote: "RUB", Rate: decimal.RequireFromString("92.5"), Source: "open.er-api", UpdatedAt: fetchedAt},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepo_UpsertWithoutTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO exchange_rates`).
		WithArgs("TON", "USD", pgxmock.AnyArg(), "tonapi", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewRateRepo(mock).Upsert(context.Background(), []models.ExchangeRate{
		{Base: "TON", Quote: "USD", Rate: decimal.RequireFromString("5"), Source: "tonapi"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
