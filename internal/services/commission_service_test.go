package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type commissionHarness struct {
	ledger      *LedgerService
	wallets     *memWallets
	referrals   *memReferrals
	partners    *memPartners
	commissions *memCommissions
	svc         *CommissionService
	refSvc      *ReferralService
	publisher   *recordingPublisher
	notifier    *recordingNotifier
}

func newCommissionHarness(overrides map[string]string) *commissionHarness {
	h := &commissionHarness{
		wallets:     newMemWallets(),
		referrals:   newMemReferrals(),
		partners:    newMemPartners(),
		commissions: &memCommissions{},
		publisher:   &recordingPublisher{},
		notifier:    &recordingNotifier{},
	}
	tx := &fakeTx{}
	h.ledger = NewLedgerService(h.wallets, tx, zap.NewNop())
	h.svc = NewCommissionService(h.referrals, h.partners, h.commissions, h.ledger, tx,
		testSettings(overrides), h.publisher, h.notifier, zap.NewNop())
	h.ledger.SetDebitObserver(h.svc)
	h.refSvc = NewReferralService(h.referrals, h.partners, zap.NewNop())
	return h
}

func (h *commissionHarness) fund(t *testing.T, userID uuid.UUID, kind, amount string) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), CreditRequest{UserID: userID, Kind: kind, Amount: d(amount), Source: models.SourceAdmin})
	require.NoError(t, err)
}

func (h *commissionHarness) spend(t *testing.T, userID uuid.UUID, kind, amount string) *LedgerResult {
	t.Helper()
	res, err := h.ledger.Debit(context.Background(), DebitRequest{UserID: userID, Kind: kind, Amount: d(amount), Source: models.SourceService, Reason: "purchase"})
	require.NoError(t, err)
	return res
}

func (h *commissionHarness) balance(t *testing.T, userID uuid.UUID, kind string) decimal.Decimal {
	t.Helper()
	w, err := h.ledger.GetWallet(context.Background(), userID, kind)
	require.NoError(t, err)
	return w.Balance
}

func TestCommission_DefaultPercentToMainWallet(t *testing.T) {
	h := newCommissionHarness(nil)
	referrer, user := uuid.New(), uuid.New()
	_, err := h.refSvc.Attach(context.Background(), user, referrer)
	require.NoError(t, err)
	h.fund(t, user, "", "100")

	debit := h.spend(t, user, "", "33.333333")

	rows := h.commissions.all()
	require.Len(t, rows, 1)
	c := rows[0]
	assert.Equal(t, debit.Entry.ID, c.DebitEntryID)
	assert.Equal(t, referrer, c.ReferrerID)
	assert.Equal(t, models.WalletKindMain, c.WalletKind)
	assert.Equal(t, "3.333333", c.Amount.String(), "floor of 3.3333333")
	require.NotNil(t, c.CreditEntryID)

	assert.True(t, h.balance(t, referrer, models.WalletKindMain).Equal(d("3.333333")))
	entries := h.wallets.entriesFor(referrer, models.WalletKindMain)
	require.Len(t, entries, 1)
	assert.Equal(t, *c.CreditEntryID, entries[0].ID)
	assert.Equal(t, models.SourceReferral, entries[0].Source)

	ref, err := h.referrals.GetByReferred(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 1, ref.TotalPayments)
	assert.True(t, ref.TotalCommission.Equal(d("3.333333")))
	assert.NotNil(t, ref.FirstPaymentAt)

	assert.Contains(t, h.publisher.types(), events.EventCommissionPaid)
	assert.Len(t, h.notifier.texts[referrer], 1)
}

func TestCommission_ActivePartnerUsesPartnerWallet(t *testing.T) {
	h := newCommissionHarness(nil)
	referrer, user := uuid.New(), uuid.New()
	_, err := h.partners.Upsert(context.Background(), referrer, d("25"))
	require.NoError(t, err)
	ref, err := h.refSvc.Attach(context.Background(), user, referrer)
	require.NoError(t, err)
	require.NotNil(t, ref.PartnerID)
	h.fund(t, user, "", "10")

	h.spend(t, user, "", "10")

	assert.True(t, h.balance(t, referrer, models.WalletKindPartner).Equal(d("2.5")))
	assert.True(t, h.balance(t, referrer, models.WalletKindMain).IsZero())

	p, err := h.partners.GetByUserID(context.Background(), referrer)
	require.NoError(t, err)
	assert.True(t, p.TotalEarned.Equal(d("2.5")))
}

func TestCommission_BlockedPartnerFallsBackToDefault(t *testing.T) {
	h := newCommissionHarness(nil)
	referrer, user := uuid.New(), uuid.New()
	_, err := h.partners.Upsert(context.Background(), referrer, d("25"))
	require.NoError(t, err)
	_, err = h.refSvc.Attach(context.Background(), user, referrer)
	require.NoError(t, err)
	_, err = h.partners.SetStatus(context.Background(), referrer, models.PartnerStatusBlocked)
	require.NoError(t, err)
	h.fund(t, user, "", "10")

	h.spend(t, user, "", "10")

	assert.True(t, h.balance(t, referrer, models.WalletKindMain).Equal(d("1")))
	assert.True(t, h.balance(t, referrer, models.WalletKindPartner).IsZero())
}

func TestCommission_OnePerDebit(t *testing.T) {
	h := newCommissionHarness(nil)
	referrer, user := uuid.New(), uuid.New()
	_, err := h.refSvc.Attach(context.Background(), user, referrer)
	require.NoError(t, err)
	h.fund(t, user, "", "10")

	first := h.spend(t, user, "", "2")
	h.spend(t, user, "", "2")

	rows := h.commissions.all()
	require.Len(t, rows, 2, "two identical debits are two distinct entries")
	assert.NotEqual(t, rows[0].DebitEntryID, rows[1].DebitEntryID)

	// replaying the same debit event pays nothing more
	err = h.svc.OnDebit(context.Background(), DebitEvent{
		UserID:     user,
		WalletKind: models.WalletKindMain,
		EntryID:    first.Entry.ID,
		Amount:     d("2"),
	})
	require.NoError(t, err)
	assert.Len(t, h.commissions.all(), 2)
	assert.True(t, h.balance(t, referrer, models.WalletKindMain).Equal(d("0.4")))
}

func TestCommission_Skips(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		attach    bool
		kind      string
		amount    string
	}{
		{"no referrer", nil, false, models.WalletKindMain, "5"},
		{"disabled", map[string]string{settings.CommissionEnabled: "false"}, true, models.WalletKindMain, "5"},
		{"bonus wallet", nil, true, models.WalletKindBonus, "5"},
		{"rounds to zero", nil, true, models.WalletKindMain, "0.000009"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCommissionHarness(tt.overrides)
			referrer, user := uuid.New(), uuid.New()
			if tt.attach {
				_, err := h.refSvc.Attach(context.Background(), user, referrer)
				require.NoError(t, err)
			}
			h.fund(t, user, tt.kind, "10")
			h.spend(t, user, tt.kind, tt.amount)

			assert.Empty(t, h.commissions.all())
			assert.True(t, h.balance(t, referrer, models.WalletKindMain).IsZero())
		})
	}
}

// A deposit priced through the full chain, then spent, pays the referrer once.
func TestCommission_DepositThenSpendScenario(t *testing.T) {
	ph := newPaymentHarness(t, "0")
	ch := newCommissionHarness(nil)
	ch.ledger = ph.ledger
	ch.svc = NewCommissionService(ch.referrals, ch.partners, ch.commissions, ph.ledger, &fakeTx{},
		testSettings(nil), ch.publisher, ch.notifier, zap.NewNop())
	ph.ledger.SetDebitObserver(ch.svc)

	referrer, user := uuid.New(), uuid.New()
	_, err := ch.refSvc.Attach(context.Background(), user, referrer)
	require.NoError(t, err)

	p := ph.pending(t, user, "1000", "0", "XYZ")
	res, err := ph.svc.Confirm(context.Background(), p.ID, PathWebhook)
	require.NoError(t, err)
	require.True(t, res.Credited)
	assert.Equal(t, "1.111111", ph.balance(t, user).String())

	_, err = ph.ledger.Debit(context.Background(), DebitRequest{UserID: user, Amount: d("1.111111"), Source: models.SourceService})
	require.NoError(t, err)

	rows := ch.commissions.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "0.111111", rows[0].Amount.String())
	assert.True(t, ph.balance(t, referrer).Equal(d("0.111111")))
}
