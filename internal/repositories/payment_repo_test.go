package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepo_MarkTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	ctx := context.Background()
	id := uuid.New()
	reason := "provider declined"

	t.Run("Pending row updated", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments SET status = \$1`).
			WithArgs(models.PaymentStatusFailed, &reason, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.MarkTerminal(ctx, id, models.PaymentStatusFailed, &reason)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Already terminal", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments SET status = \$1`).
			WithArgs(models.PaymentStatusExpired, pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := repo.MarkTerminal(ctx, id, models.PaymentStatusExpired, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DB error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments SET status = \$1`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.MarkTerminal(ctx, id, models.PaymentStatusExpired, nil)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ExpireOverdue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE payments SET status = 'expired'`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := NewPaymentRepo(mock).ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM payments WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = NewPaymentRepo(mock).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
