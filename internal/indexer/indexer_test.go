package indexer

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers/tonpay"
	"github.com/gton-market/settlement/internal/services"
	"github.com/gton-market/settlement/internal/ton"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWallet struct {
	state     *ton.AccountState
	transfers []ton.Transfer
	err       error
}

func (w *fakeWallet) State(context.Context) (*ton.AccountState, error) {
	return w.state, w.err
}

func (w *fakeWallet) TransfersSince(_ context.Context, _ *ton.AccountState, cursor uint64) ([]ton.Transfer, error) {
	var out []ton.Transfer
	for _, t := range w.transfers {
		if t.LT > cursor {
			out = append(out, t)
		}
	}
	return out, nil
}

type memState struct {
	cursor    uint64
	hasCursor bool
	marks     map[uint64]string
	retry     map[uint64]ton.Transfer
}

func newMemState() *memState {
	return &memState{marks: map[uint64]string{}, retry: map[uint64]ton.Transfer{}}
}

func (s *memState) LoadCursor(context.Context) (uint64, bool, error) {
	return s.cursor, s.hasCursor, nil
}

func (s *memState) SaveCursor(_ context.Context, lt uint64, _ []byte) error {
	s.cursor, s.hasCursor = lt, true
	return nil
}

func (s *memState) Seen(_ context.Context, lt uint64) (bool, error) {
	_, ok := s.marks[lt]
	return ok, nil
}

func (s *memState) Mark(_ context.Context, lt uint64, outcome string) error {
	if _, ok := s.marks[lt]; !ok {
		s.marks[lt] = outcome
	}
	return nil
}

func (s *memState) Defer(_ context.Context, t ton.Transfer) error {
	s.retry[t.LT] = t
	return nil
}

func (s *memState) Deferred(context.Context) ([]ton.Transfer, error) {
	out := make([]ton.Transfer, 0, len(s.retry))
	for _, t := range s.retry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LT < out[j].LT })
	return out, nil
}

func (s *memState) Resolve(_ context.Context, lt uint64) error {
	delete(s.retry, lt)
	return nil
}

type fakePayments struct {
	byRef     map[string]*models.Payment
	confirmed []uuid.UUID
	err       error
	lookupErr error
}

func (f *fakePayments) GetByReference(_ context.Context, ref string) (*models.Payment, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.byRef[ref]
	if !ok {
		return nil, services.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakePayments) Confirm(_ context.Context, id uuid.UUID, path string) (*services.ConfirmResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.byRef {
		if p.ID == id {
			if p.Status != models.PaymentStatusPending {
				return &services.ConfirmResult{Payment: p}, nil
			}
			p.Status = models.PaymentStatusCompleted
			f.confirmed = append(f.confirmed, id)
			return &services.ConfirmResult{Payment: p, Credited: true}, nil
		}
	}
	return nil, services.ErrPaymentNotFound
}

func tonPayment(ref, tonAmount string) *models.Payment {
	amount := decimal.RequireFromString(tonAmount)
	ext := tonpay.ExternalID(ref, ton.ToNano(amount))
	return &models.Payment{
		ID:         uuid.New(),
		Reference:  ref,
		ProviderID: tonpay.ProviderID,
		ExternalID: &ext,
		Amount:     amount,
		Currency:   "TON",
		Status:     models.PaymentStatusPending,
	}
}

func nano(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func TestPoll_MatchesMemoAndAmount(t *testing.T) {
	paid := tonPayment("01HZPAID", "1.5")
	short := tonPayment("01HZSHORT", "2")
	other := tonPayment("01HZOTHER", "1")
	other.ProviderID = "cryptobot"

	payments := &fakePayments{byRef: map[string]*models.Payment{
		paid.Reference:  paid,
		short.Reference: short,
		other.Reference: other,
	}}
	wallet := &fakeWallet{
		state: &ton.AccountState{Active: true, LastTxLT: 60},
		transfers: []ton.Transfer{
			{LT: 10, AmountNano: nano("1500000000"), Comment: "01HZPAID"},
			{LT: 20, AmountNano: nano("1999999999"), Comment: "01HZSHORT"},
			{LT: 30, AmountNano: nano("5"), Comment: ""},
			{LT: 40, AmountNano: nano("5"), Comment: "unknown"},
			{LT: 50, AmountNano: nano("1000000000"), Comment: "01HZOTHER"},
		},
	}
	state := newMemState()
	state.hasCursor = true

	ix := New(wallet, state, payments, 0, zap.NewNop())
	settled, err := ix.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, settled)
	assert.Equal(t, []uuid.UUID{paid.ID}, payments.confirmed)
	assert.Equal(t, models.PaymentStatusPending, short.Status)
	assert.Equal(t, uint64(60), state.cursor)

	assert.Equal(t, "confirmed:"+paid.ID.String(), state.marks[10])
	assert.NotContains(t, state.marks, uint64(20), "underpaid transfer stays unmarked")
	assert.NotContains(t, state.marks, uint64(30))
	assert.Equal(t, "no_payment", state.marks[40])
	assert.Equal(t, "skip:provider", state.marks[50])
}

func TestPoll_ReplayIsIdempotent(t *testing.T) {
	paid := tonPayment("01HZPAID", "1")
	payments := &fakePayments{byRef: map[string]*models.Payment{paid.Reference: paid}}
	wallet := &fakeWallet{
		state:     &ton.AccountState{Active: true, LastTxLT: 10},
		transfers: []ton.Transfer{{LT: 10, AmountNano: nano("1000000000"), Comment: "01HZPAID"}},
	}
	state := newMemState()
	state.hasCursor = true

	ix := New(wallet, state, payments, 0, zap.NewNop())
	_, err := ix.Poll(context.Background())
	require.NoError(t, err)

	// cursor rewound: the transfer is seen again but skipped
	state.cursor = 0
	settled, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Len(t, payments.confirmed, 1)
}

func TestPoll_DeferredConfirmIsRetried(t *testing.T) {
	p := tonPayment("01HZRATE", "1")
	payments := &fakePayments{byRef: map[string]*models.Payment{p.Reference: p}, err: services.ErrRateUnavailable}
	wallet := &fakeWallet{
		state:     &ton.AccountState{Active: true, LastTxLT: 10},
		transfers: []ton.Transfer{{LT: 10, AmountNano: nano("1000000000"), Comment: "01HZRATE"}},
	}
	state := newMemState()
	state.hasCursor = true
	ix := New(wallet, state, payments, 0, zap.NewNop())

	settled, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Empty(t, state.marks)
	assert.Equal(t, uint64(10), state.cursor)
	assert.Contains(t, state.retry, uint64(10))

	// still failing: kept for the next cycle
	settled, err = ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Contains(t, state.retry, uint64(10))

	// rates are back; no new transfers on chain
	payments.err = nil
	settled, err = ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, []uuid.UUID{p.ID}, payments.confirmed)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "confirmed:"+p.ID.String(), state.marks[10])
	assert.Empty(t, state.retry)
}

func TestPoll_LookupFailureIsRetried(t *testing.T) {
	p := tonPayment("01HZDB", "1")
	payments := &fakePayments{byRef: map[string]*models.Payment{p.Reference: p}, lookupErr: errors.New("connection reset")}
	wallet := &fakeWallet{
		state: &ton.AccountState{Active: true, LastTxLT: 20},
		transfers: []ton.Transfer{
			{LT: 10, AmountNano: nano("1000000000"), Comment: "01HZDB"},
		},
	}
	state := newMemState()
	state.hasCursor = true
	ix := New(wallet, state, payments, 0, zap.NewNop())

	_, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(20), state.cursor)
	assert.Contains(t, state.retry, uint64(10))

	payments.lookupErr = nil
	settled, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Empty(t, state.retry)
}

func TestPoll_DeferredTransferForExpiredPaymentIsDropped(t *testing.T) {
	p := tonPayment("01HZLATE", "1")
	p.Status = models.PaymentStatusExpired
	state := newMemState()
	state.cursor, state.hasCursor = 10, true
	state.retry[10] = ton.Transfer{LT: 10, AmountNano: nano("1000000000"), Comment: "01HZLATE"}

	wallet := &fakeWallet{state: &ton.AccountState{Active: true, LastTxLT: 10}}
	payments := &fakePayments{byRef: map[string]*models.Payment{p.Reference: p}}

	settled, err := New(wallet, state, payments, 0, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Empty(t, state.retry)
	assert.Equal(t, "skip:"+models.PaymentStatusExpired, state.marks[10])
}

func TestPoll_NothingNew(t *testing.T) {
	wallet := &fakeWallet{state: &ton.AccountState{Active: true, LastTxLT: 10}}
	state := newMemState()
	state.cursor, state.hasCursor = 10, true

	settled, err := New(wallet, state, &fakePayments{}, 0, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestInitCursor(t *testing.T) {
	t.Run("Pins to head on first start", func(t *testing.T) {
		state := newMemState()
		wallet := &fakeWallet{state: &ton.AccountState{Active: true, LastTxLT: 99}}
		require.NoError(t, New(wallet, state, &fakePayments{}, 0, zap.NewNop()).initCursor(context.Background()))
		assert.Equal(t, uint64(99), state.cursor)
	})

	t.Run("Keeps saved cursor", func(t *testing.T) {
		state := newMemState()
		state.cursor, state.hasCursor = 5, true
		wallet := &fakeWallet{state: &ton.AccountState{Active: true, LastTxLT: 99}}
		require.NoError(t, New(wallet, state, &fakePayments{}, 0, zap.NewNop()).initCursor(context.Background()))
		assert.Equal(t, uint64(5), state.cursor)
	})

	t.Run("Falls back to zero when the node is unreachable", func(t *testing.T) {
		state := newMemState()
		wallet := &fakeWallet{err: errors.New("timeout")}
		err := New(wallet, state, &fakePayments{}, 0, zap.NewNop()).initCursor(context.Background())
		assert.Error(t, err)
		assert.True(t, state.hasCursor)
		assert.Zero(t, state.cursor)
	})
}

func TestExpectedNano_FallsBackToAmount(t *testing.T) {
	p := &models.Payment{Amount: decimal.RequireFromString("0.25")}
	assert.Equal(t, "250000000", expectedNano(p).String())
}
