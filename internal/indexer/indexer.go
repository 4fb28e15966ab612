// Package indexer follows the TON hot wallet and settles tonpay payments whose
// memo and amount match an incoming transfer.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers/tonpay"
	"github.com/gton-market/settlement/internal/services"
	"github.com/gton-market/settlement/internal/ton"
	"go.uber.org/zap"
)

const processedTTL = 7 * 24 * time.Hour

type Wallet interface {
	State(ctx context.Context) (*ton.AccountState, error)
	TransfersSince(ctx context.Context, state *ton.AccountState, cursorLT uint64) ([]ton.Transfer, error)
}

// State keeps the scan cursor, the set of transfers already handled and the
// transfers whose settlement must be retried after the cursor moved past them.
type State interface {
	LoadCursor(ctx context.Context) (lt uint64, ok bool, err error)
	SaveCursor(ctx context.Context, lt uint64, hash []byte) error
	Seen(ctx context.Context, lt uint64) (bool, error)
	Mark(ctx context.Context, lt uint64, outcome string) error

	Defer(ctx context.Context, t ton.Transfer) error
	Deferred(ctx context.Context) ([]ton.Transfer, error)
	Resolve(ctx context.Context, lt uint64) error
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSettled
	// outcomeRetry: a transient failure, the transfer goes to the retry set
	outcomeRetry
)

type Payments interface {
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	Confirm(ctx context.Context, id uuid.UUID, path string) (*services.ConfirmResult, error)
}

type Indexer struct {
	wallet   Wallet
	state    State
	payments Payments
	interval time.Duration
	log      *zap.Logger
}

func New(wallet Wallet, state State, payments Payments, interval time.Duration, log *zap.Logger) *Indexer {
	return &Indexer{wallet: wallet, state: state, payments: payments, interval: interval, log: log}
}

// Run polls until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) {
	if err := ix.initCursor(ctx); err != nil {
		ix.log.Warn("cursor init failed, starting from LT=0", zap.Error(err))
	}

	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ix.Poll(ctx); err != nil {
				ix.log.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// initCursor pins the cursor to the current head on first start so that
// historical transfers are not replayed.
func (ix *Indexer) initCursor(ctx context.Context) error {
	if _, ok, err := ix.state.LoadCursor(ctx); err != nil || ok {
		if ok {
			ix.log.Info("resuming from saved cursor")
		}
		return err
	}

	st, err := ix.wallet.State(ctx)
	if err != nil {
		_ = ix.state.SaveCursor(ctx, 0, nil)
		return err
	}
	if err := ix.state.SaveCursor(ctx, st.LastTxLT, st.LastTxHash); err != nil {
		return err
	}
	ix.log.Info("cursor initialized at account head", zap.Uint64("lt", st.LastTxLT))
	return nil
}

// Poll first retries deferred transfers, then handles every transfer newer
// than the cursor and advances it. It returns the number of payments settled.
func (ix *Indexer) Poll(ctx context.Context) (int, error) {
	settled := ix.retryDeferred(ctx)

	cursor, _, err := ix.state.LoadCursor(ctx)
	if err != nil {
		return settled, fmt.Errorf("load cursor: %w", err)
	}

	st, err := ix.wallet.State(ctx)
	if err != nil {
		return settled, err
	}
	if !st.Active || st.LastTxLT <= cursor {
		return settled, nil
	}

	transfers, err := ix.wallet.TransfersSince(ctx, st, cursor)
	if err != nil {
		return settled, fmt.Errorf("fetch transfers: %w", err)
	}
	if len(transfers) > 0 {
		ix.log.Info("found new transfers", zap.Int("count", len(transfers)))
	}

	for _, t := range transfers {
		switch ix.process(ctx, t) {
		case outcomeSettled:
			settled++
		case outcomeRetry:
			// the cursor is only saved once the transfer is safely deferred
			if err := ix.state.Defer(ctx, t); err != nil {
				return settled, fmt.Errorf("defer transfer %d: %w", t.LT, err)
			}
		}
	}

	if err := ix.state.SaveCursor(ctx, st.LastTxLT, st.LastTxHash); err != nil {
		return settled, fmt.Errorf("save cursor: %w", err)
	}
	return settled, nil
}

func (ix *Indexer) retryDeferred(ctx context.Context) int {
	deferred, err := ix.state.Deferred(ctx)
	if err != nil {
		ix.log.Warn("failed to load deferred transfers", zap.Error(err))
		return 0
	}

	settled := 0
	for _, t := range deferred {
		res := ix.process(ctx, t)
		if res == outcomeRetry {
			continue
		}
		if res == outcomeSettled {
			settled++
		}
		if err := ix.state.Resolve(ctx, t.LT); err != nil {
			ix.log.Warn("failed to drop deferred transfer", zap.Uint64("lt", t.LT), zap.Error(err))
		}
	}
	if len(deferred) > 0 {
		ix.log.Info("retried deferred transfers", zap.Int("count", len(deferred)), zap.Int("settled", settled))
	}
	return settled
}

func (ix *Indexer) process(ctx context.Context, t ton.Transfer) outcome {
	if t.Comment == "" {
		ix.log.Debug("transfer without memo, skipping", zap.Uint64("lt", t.LT), zap.String("from", t.From))
		return outcomeDone
	}

	seen, err := ix.state.Seen(ctx, t.LT)
	if err != nil {
		ix.log.Warn("dedupe lookup failed", zap.Uint64("lt", t.LT), zap.Error(err))
	}
	if seen {
		return outcomeDone
	}

	log := ix.log.With(
		zap.Uint64("lt", t.LT),
		zap.String("from", t.From),
		zap.String("memo", t.Comment),
		zap.String("amount_nano", t.AmountNano.String()),
	)

	p, err := ix.payments.GetByReference(ctx, t.Comment)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			log.Debug("no payment for memo")
			ix.mark(ctx, t.LT, "no_payment")
			return outcomeDone
		}
		log.Error("payment lookup failed", zap.Error(err))
		return outcomeRetry
	}
	if p.ProviderID != tonpay.ProviderID {
		ix.mark(ctx, t.LT, "skip:provider")
		return outcomeDone
	}
	if p.Status != models.PaymentStatusPending {
		ix.mark(ctx, t.LT, "skip:"+p.Status)
		return outcomeDone
	}

	expected := expectedNano(p)
	if t.AmountNano.Cmp(expected) < 0 {
		// left unmarked: a top-up with the same memo may still arrive
		log.Warn("insufficient payment, amount below expected", zap.String("expected_nano", expected.String()))
		return outcomeDone
	}

	res, err := ix.payments.Confirm(ctx, p.ID, services.PathIndexer)
	if err != nil {
		log.Error("confirm failed, will retry", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return outcomeRetry
	}
	ix.mark(ctx, t.LT, "confirmed:"+p.ID.String())
	if !res.Credited {
		return outcomeDone
	}
	log.Info("payment settled from chain", zap.String("payment_id", p.ID.String()))
	return outcomeSettled
}

func (ix *Indexer) mark(ctx context.Context, lt uint64, outcome string) {
	if err := ix.state.Mark(ctx, lt, outcome); err != nil {
		ix.log.Warn("failed to mark transfer", zap.Uint64("lt", lt), zap.Error(err))
	}
}

// expectedNano prefers the amount fixed in the invoice id over re-deriving it.
func expectedNano(p *models.Payment) *big.Int {
	if p.ExternalID != nil {
		if _, nano, err := tonpay.ParseExternalID(*p.ExternalID); err == nil {
			return nano
		}
	}
	return ton.ToNano(p.Amount)
}
