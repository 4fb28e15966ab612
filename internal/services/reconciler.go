package services

import (
	"context"
	"time"

	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers"
	"go.uber.org/zap"
)

// Reconciler polls providers for payments whose webhook never arrived.
type Reconciler struct {
	payments  *PaymentService
	store     PaymentStore
	registry  *providers.Registry
	interval  time.Duration
	batchSize int
	itemDelay time.Duration
	timeout   time.Duration
	log       *zap.Logger
}

type ReconcilerConfig struct {
	Interval        time.Duration
	BatchSize       int
	ItemDelay       time.Duration
	ProviderTimeout time.Duration
}

func NewReconciler(payments *PaymentService, store PaymentStore, registry *providers.Registry, cfg ReconcilerConfig, log *zap.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	return &Reconciler{
		payments:  payments,
		store:     store,
		registry:  registry,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		itemDelay: cfg.ItemDelay,
		timeout:   cfg.ProviderTimeout,
		log:       log,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciler started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// ReconcileStats is what one cycle did.
type ReconcileStats struct {
	Expired   int64
	Checked   int
	Completed int
	Failed    int
}

func (r *Reconciler) RunOnce(ctx context.Context) ReconcileStats {
	start := time.Now()
	defer func() { reconcileCycleSeconds.Observe(time.Since(start).Seconds()) }()

	var stats ReconcileStats
	n, err := r.payments.ExpireSweep(ctx)
	if err != nil {
		r.log.Error("expire sweep failed", zap.Error(err))
	}
	stats.Expired = n

	pending, err := r.store.ListPendingWithExternal(ctx, r.batchSize)
	if err != nil {
		r.log.Error("failed to list pending payments", zap.Error(err))
		return stats
	}

	for i := range pending {
		if ctx.Err() != nil {
			return stats
		}
		if i > 0 && r.itemDelay > 0 {
			select {
			case <-ctx.Done():
				return stats
			case <-time.After(r.itemDelay):
			}
		}
		r.reconcile(ctx, &pending[i], &stats)
	}

	if stats.Checked > 0 || stats.Expired > 0 {
		r.log.Info("reconcile cycle done",
			zap.Int64("expired", stats.Expired),
			zap.Int("checked", stats.Checked),
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats
}

func (r *Reconciler) reconcile(ctx context.Context, p *models.Payment, stats *ReconcileStats) {
	if p.ExternalID == nil {
		return
	}
	adapter, _, ok := r.registry.Get(p.ProviderID)
	if !ok {
		r.log.Warn("no adapter for pending payment",
			zap.String("payment_id", p.ID.String()),
			zap.String("provider", p.ProviderID),
		)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	status := adapter.CheckPayment(cctx, *p.ExternalID)
	cancel()

	stats.Checked++
	reconcileChecks.WithLabelValues(p.ProviderID, string(status)).Inc()

	log := r.log.With(zap.String("payment_id", p.ID.String()), zap.String("provider", p.ProviderID))
	switch status {
	case providers.StatusCompleted:
		res, err := r.payments.Confirm(ctx, p.ID, PathReconcile)
		if err != nil {
			log.Warn("confirm failed, will retry", zap.Error(err))
			return
		}
		if res.Credited {
			stats.Completed++
		}
	case providers.StatusExpired:
		if _, err := r.payments.Expire(ctx, p.ID); err != nil {
			log.Error("expire failed", zap.Error(err))
		}
	case providers.StatusFailed:
		ok, err := r.payments.Fail(ctx, p.ID, "provider reported failure")
		if err != nil {
			log.Error("fail failed", zap.Error(err))
			return
		}
		if ok {
			stats.Failed++
		}
	}
}
