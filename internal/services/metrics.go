package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gton_rate_fetch_failures_total",
		Help: "Failed exchange rate fetches by source.",
	}, []string{"source"})

	rateFallbackUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gton_rate_fallback_used_total",
		Help: "Conversions priced from the static crypto fallback table.",
	}, []string{"currency"})

	reconcileChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gton_reconcile_checks_total",
		Help: "Provider status checks performed by the reconciliation loop.",
	}, []string{"provider", "status"})

	reconcileCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gton_reconcile_cycle_seconds",
		Help:    "Duration of one reconciliation cycle.",
		Buckets: prometheus.DefBuckets,
	})

	paymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gton_payments_settled_total",
		Help: "Payments credited to the ledger, by confirmation path.",
	}, []string{"path"})

	paymentsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gton_payments_expired_total",
		Help: "Payments moved to expired by the sweep.",
	})

	commissionsPaid = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gton_commissions_paid_total",
		Help: "Referral commissions credited, by wallet kind.",
	}, []string{"wallet_kind"})
)
