package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(h *paymentHarness, delay time.Duration) *Reconciler {
	return NewReconciler(h.svc, h.payments, h.svc.registry, ReconcilerConfig{
		Interval:        time.Hour,
		BatchSize:       20,
		ItemDelay:       delay,
		ProviderTimeout: time.Second,
	}, zap.NewNop())
}

func TestReconciler_RunOnce(t *testing.T) {
	tests := []struct {
		name       string
		status     providers.Status
		wantStatus string
		credited   bool
	}{
		{"completed is confirmed", providers.StatusCompleted, models.PaymentStatusCompleted, true},
		{"expired is expired", providers.StatusExpired, models.PaymentStatusExpired, false},
		{"failed is failed", providers.StatusFailed, models.PaymentStatusFailed, false},
		{"pending is left alone", providers.StatusPending, models.PaymentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPaymentHarness(t, "0")
			h.adapter.status = tt.status
			user := uuid.New()
			p := h.pending(t, user, "9", "0", "USD")

			stats := newTestReconciler(h, 0).RunOnce(context.Background())
			assert.Equal(t, 1, stats.Checked)

			assert.Equal(t, tt.wantStatus, mustGet(t, h, p.ID).Status)
			if tt.credited {
				assert.Equal(t, 1, stats.Completed)
				assert.True(t, h.balance(t, user).Equal(d("1")))
			} else {
				assert.True(t, h.balance(t, user).IsZero())
			}
		})
	}
}

func TestReconciler_SweepsBeforePolling(t *testing.T) {
	h := newPaymentHarness(t, "0")
	h.adapter.status = providers.StatusCompleted
	user := uuid.New()
	p := h.pending(t, user, "9", "0", "USD")
	h.payments.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	stats := newTestReconciler(h, 0).RunOnce(context.Background())

	assert.Equal(t, int64(1), stats.Expired)
	assert.Zero(t, stats.Checked)
	assert.Equal(t, models.PaymentStatusExpired, mustGet(t, h, p.ID).Status)
	assert.True(t, h.balance(t, user).IsZero())
}

func TestReconciler_DeferredConfirmRetriesNextCycle(t *testing.T) {
	h := newPaymentHarness(t, "0")
	h.adapter.status = providers.StatusCompleted
	user := uuid.New()
	p := h.pending(t, user, "1000", "0", "XYZ")
	r := newTestReconciler(h, 0)

	delete(h.rates, "TON/USD")
	r.RunOnce(context.Background())
	assert.Equal(t, models.PaymentStatusPending, mustGet(t, h, p.ID).Status)

	h.rates["TON/USD"] = d("6")
	stats := r.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, "1.111111", h.balance(t, user).String())
}

func TestReconciler_StopsBetweenItemsOnCancel(t *testing.T) {
	h := newPaymentHarness(t, "0")
	h.pending(t, uuid.New(), "9", "0", "USD")
	h.pending(t, uuid.New(), "9", "0", "USD")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	stats := newTestReconciler(h, time.Hour).RunOnce(ctx)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, stats.Checked)
}

func TestReconciler_RunReturnsOnCancel(t *testing.T) {
	h := newPaymentHarness(t, "0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		newTestReconciler(h, 0).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "reconciler did not stop")
	}
}
