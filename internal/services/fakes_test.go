package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/events"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/providers"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeTx serializes units of work the way row locks would.
type fakeTx struct {
	mu sync.Mutex
}

func (t *fakeTx) InTx(_ context.Context, fn func(q db.Querier) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(nil)
}

type mapSettings map[string]string

func (m mapSettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func testSettings(overrides map[string]string) *settings.Reader {
	defaults := map[string]string{
		settings.MinDeposit:            "1",
		settings.MaxDeposit:            "100000",
		settings.FeePercent:            "0",
		settings.TimeoutMinutes:        "60",
		settings.GtonTonRate:           "1.5",
		settings.FiatTTLMinutes:        "1440",
		settings.CryptoTTLMinutes:      "5",
		settings.CryptoFallbackEnabled: "false",
		settings.ReferralLevel1Percent: "10",
		settings.PartnerLevel1Percent:  "20",
		settings.CommissionEnabled:     "true",
	}
	return settings.NewReader(mapSettings(overrides), defaults, zap.NewNop())
}

// --- wallets ---

type memWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	entries []models.LedgerEntry
}

func newMemWallets() *memWallets {
	return &memWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (m *memWallets) find(userID uuid.UUID, kind string) *models.Wallet {
	for _, w := range m.wallets {
		if w.UserID == userID && w.Kind == kind {
			return w
		}
	}
	return nil
}

func (m *memWallets) LockWallet(_ context.Context, _ db.Querier, userID uuid.UUID, kind string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.find(userID, kind)
	if w == nil {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, Kind: kind, CreatedAt: time.Now()}
		m.wallets[w.ID] = w
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) InsertEntry(_ context.Context, _ db.Querier, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memWallets) UpdateBalance(_ context.Context, _ db.Querier, walletID uuid.UUID, balance, frozen decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return repositories.ErrNotFound
	}
	w.Balance = balance
	w.Frozen = frozen
	return nil
}

func (m *memWallets) GetWallet(_ context.Context, userID uuid.UUID, kind string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.find(userID, kind)
	if w == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) GetWalletByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) ListWallets(_ context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *memWallets) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	chain, _ := m.ListChain(ctx, walletID)
	var out []models.LedgerEntry
	for i := len(chain) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, chain[i])
	}
	return out, nil
}

func (m *memWallets) ListChain(_ context.Context, walletID uuid.UUID) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memWallets) ListWalletIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, 0, len(m.wallets))
	for id := range m.wallets {
		out = append(out, id)
	}
	return out, nil
}

func (m *memWallets) entriesFor(userID uuid.UUID, kind string) []models.LedgerEntry {
	m.mu.Lock()
	w := m.find(userID, kind)
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	chain, _ := m.ListChain(context.Background(), w.ID)
	return chain
}

// --- payments ---

type memPayments struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
	now      func() time.Time
}

func newMemPayments() *memPayments {
	return &memPayments{payments: make(map[uuid.UUID]*models.Payment), now: time.Now}
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.Status = models.PaymentStatusPending
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPayments) SetExternal(_ context.Context, id uuid.UUID, externalID, payURL string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.ExternalID = &externalID
	p.PayURL = &payURL
	p.RawResponse = raw
	return nil
}

func (m *memPayments) get(match func(*models.Payment) bool) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return m.get(func(p *models.Payment) bool { return p.ID == id })
}

func (m *memPayments) GetByExternalID(_ context.Context, providerID, externalID string) (*models.Payment, error) {
	return m.get(func(p *models.Payment) bool {
		return p.ProviderID == providerID && p.ExternalID != nil && *p.ExternalID == externalID
	})
}

func (m *memPayments) GetByReference(_ context.Context, reference string) (*models.Payment, error) {
	return m.get(func(p *models.Payment) bool { return p.Reference == reference })
}

func (m *memPayments) LockByID(ctx context.Context, _ db.Querier, id uuid.UUID) (*models.Payment, error) {
	return m.GetByID(ctx, id)
}

func (m *memPayments) Complete(_ context.Context, _ db.Querier, p *models.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok || stored.Status != models.PaymentStatusPending {
		return false, nil
	}
	now := m.now()
	stored.Status = models.PaymentStatusCompleted
	stored.CompletedAt = &now
	stored.RateCurrencyUSD = p.RateCurrencyUSD
	stored.RateTonUSD = p.RateTonUSD
	stored.RateGtonTon = p.RateGtonTon
	stored.CreditedGTON = p.CreditedGTON
	p.Status = stored.Status
	p.CompletedAt = stored.CompletedAt
	return true, nil
}

func (m *memPayments) MarkTerminal(_ context.Context, id uuid.UUID, status string, reason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.FailureReason = reason
	return true, nil
}

func (m *memPayments) ExpireOverdue(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for _, p := range m.payments {
		if p.Status == models.PaymentStatusPending && !p.ExpiresAt.After(now) {
			p.Status = models.PaymentStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memPayments) ListPendingWithExternal(_ context.Context, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.Status == models.PaymentStatusPending && p.ExternalID != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPayments) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// --- rates ---

type memRates struct {
	mu   sync.Mutex
	rows map[string]models.ExchangeRate
	gets int
}

func newMemRates() *memRates {
	return &memRates{rows: make(map[string]models.ExchangeRate)}
}

func (m *memRates) Get(_ context.Context, base, quote string) (*models.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	r, ok := m.rows[base+"/"+quote]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &r, nil
}

func (m *memRates) Upsert(_ context.Context, rates []models.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rates {
		m.rows[r.Base+"/"+r.Quote] = r
	}
	return nil
}

func (m *memRates) put(base, quote, rate string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[base+"/"+quote] = models.ExchangeRate{Base: base, Quote: quote, Rate: decimal.RequireFromString(rate), UpdatedAt: at}
}

type stubFiat struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (s *stubFiat) FetchUSDRates(context.Context) (map[string]decimal.Decimal, error) {
	s.calls++
	return s.rates, s.err
}

type stubCrypto struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (s *stubCrypto) FetchUSDPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]decimal.Decimal)
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

// staticRates is a RateSource with fixed answers.
type staticRates map[string]decimal.Decimal

func (s staticRates) GetRate(_ context.Context, base, quote string) (decimal.Decimal, bool) {
	if base == quote {
		return decimal.NewFromInt(1), true
	}
	r, ok := s[base+"/"+quote]
	return r, ok
}

func scenarioRates() staticRates {
	return staticRates{
		"USD/XYZ": decimal.NewFromInt(100),
		"TON/USD": decimal.NewFromInt(6),
		"BTC/USD": decimal.NewFromInt(50000),
		"USD/EUR": decimal.RequireFromString("0.92"),
		"USD/RUB": decimal.RequireFromString("91.37"),
	}
}

// --- referrals, partners, commissions ---

type memReferrals struct {
	mu   sync.Mutex
	refs map[uuid.UUID]*models.Referral // by referred
}

func newMemReferrals() *memReferrals {
	return &memReferrals{refs: make(map[uuid.UUID]*models.Referral)}
}

func (m *memReferrals) Create(_ context.Context, ref *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refs[ref.ReferredID]; ok {
		return repositories.ErrDuplicate
	}
	ref.ID = uuid.New()
	ref.CreatedAt = time.Now()
	cp := *ref
	m.refs[ref.ReferredID] = &cp
	return nil
}

func (m *memReferrals) GetByReferred(_ context.Context, referredID uuid.UUID) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refs[referredID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReferrals) AddCommission(_ context.Context, _ db.Querier, referralID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refs {
		if r.ID == referralID {
			now := time.Now()
			r.TotalPayments++
			r.TotalCommission = r.TotalCommission.Add(amount)
			if r.FirstPaymentAt == nil {
				r.FirstPaymentAt = &now
			}
			r.LastPaymentAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memReferrals) Summary(_ context.Context, referrerID uuid.UUID) (*models.ReferralSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.ReferralSummary{}
	for _, r := range m.refs {
		if r.ReferrerID != referrerID {
			continue
		}
		s.ReferredCount++
		if r.TotalPayments > 0 {
			s.PayingCount++
		}
		s.TotalPayments += r.TotalPayments
		s.TotalCommission = s.TotalCommission.Add(r.TotalCommission)
	}
	return s, nil
}

type memPartners struct {
	mu       sync.Mutex
	partners map[uuid.UUID]*models.Partner // by user
}

func newMemPartners() *memPartners {
	return &memPartners{partners: make(map[uuid.UUID]*models.Partner)}
}

func (m *memPartners) Upsert(_ context.Context, userID uuid.UUID, pct decimal.Decimal) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[userID]
	if !ok {
		p = &models.Partner{ID: uuid.New(), UserID: userID}
		m.partners[userID] = p
	}
	p.Status = models.PartnerStatusActive
	p.Level1Percent = pct
	cp := *p
	return &cp, nil
}

func (m *memPartners) SetStatus(_ context.Context, userID uuid.UUID, status string) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	p.Status = status
	cp := *p
	return &cp, nil
}

func (m *memPartners) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPartners) GetByID(_ context.Context, id uuid.UUID) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.partners {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memPartners) AddEarned(_ context.Context, _ db.Querier, id uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.partners {
		if p.ID == id {
			p.TotalEarned = p.TotalEarned.Add(amount)
			return nil
		}
	}
	return repositories.ErrNotFound
}

type memCommissions struct {
	mu   sync.Mutex
	rows []models.Commission
}

func (m *memCommissions) Insert(_ context.Context, _ db.Querier, c *models.Commission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.DebitEntryID == c.DebitEntryID && r.ReferrerID == c.ReferrerID {
			return false, nil
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.rows = append(m.rows, *c)
	return true, nil
}

func (m *memCommissions) SetCreditEntry(_ context.Context, _ db.Querier, id, creditEntryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].CreditEntryID = &creditEntryID
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memCommissions) ListByReferrer(_ context.Context, referrerID uuid.UUID, _, _ int) ([]models.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Commission
	for _, r := range m.rows {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memCommissions) all() []models.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Commission(nil), m.rows...)
}

// --- providers, events, notifications ---

type fakeAdapter struct {
	mu         sync.Mutex
	id         string
	createErr  error
	status     providers.Status
	created    []providers.CreateRequest
	webhookRes *providers.WebhookResult
	webhookErr error
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Currencies() []string { return []string{"USD", "XYZ", "TON", "USDT"} }

func (a *fakeAdapter) DefaultCurrency() string { return "XYZ" }

func (a *fakeAdapter) CreatePayment(_ context.Context, req providers.CreateRequest) (*providers.Invoice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return nil, a.createErr
	}
	a.created = append(a.created, req)
	return &providers.Invoice{
		ExternalID: "ext-" + req.Reference,
		PayURL:     "https://pay.example/" + req.Reference,
		Raw:        []byte(`{"ok":true}`),
	}, nil
}

func (a *fakeAdapter) CheckPayment(context.Context, string) providers.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == "" {
		return providers.StatusPending
	}
	return a.status
}

func (a *fakeAdapter) HandleWebhook(_ []byte, _ map[string]string) (*providers.WebhookResult, error) {
	return a.webhookRes, a.webhookErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts map[uuid.UUID][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.texts == nil {
		n.texts = make(map[uuid.UUID][]string)
	}
	n.texts[userID] = append(n.texts[userID], text)
}
